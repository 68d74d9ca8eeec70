package model

import "fmt"

const (
	BackendONNX  = "onnx"
	BackendDense = "dense"
)

// Options selects and locates the classifier artifacts.
type Options struct {
	Backend      string
	ModelPath    string
	MetadataPath string
	WeightsPath  string
	LibraryPath  string
}

// Load builds the configured classifier. Every failure wraps ErrModelLoad.
func Load(opts Options) (Classifier, error) {
	switch opts.Backend {
	case BackendONNX, "":
		s, err := NewServer(opts.ModelPath, opts.MetadataPath, opts.LibraryPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendDense:
		d, err := LoadDense(opts.WeightsPath)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrModelLoad, opts.Backend)
	}
}
