// Package manifest reads a desired state from a YAML file.
//
// A manifest looks like:
//
//	workloads:
//	  - name: db
//	    runtime: process
//	    command: ["postgres", "-D", "/var/lib/pg"]
//	  - name: app
//	    runtime: process
//	    command: ["./app"]
//	    control_interface: true
//	    dependencies:
//	      db: ADD_COND_RUNNING
//	deleted:
//	  - name: legacy
//	    dependencies:
//	      app: DEL_COND_RUNNING
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/anvil/internal/model"
)

// Load reads and parses the manifest at path.
func Load(path string) (model.DesiredState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DesiredState{}, fmt.Errorf("read manifest: %w", err)
	}
	ds, err := Parse(data)
	if err != nil {
		return model.DesiredState{}, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes a manifest document. Unknown fields and unknown condition
// names are rejected, and the result must pass DesiredState.Validate.
func Parse(data []byte) (model.DesiredState, error) {
	var ds model.DesiredState

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil && !errors.Is(err, io.EOF) {
		return model.DesiredState{}, fmt.Errorf("YAML parse error: %w", err)
	}

	if err := ds.Validate(); err != nil {
		return model.DesiredState{}, err
	}
	return ds, nil
}
