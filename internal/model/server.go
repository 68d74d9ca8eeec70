package model

import (
	"encoding/json"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// Server runs an ONNX classifier. The input and output tensors are allocated once
// and reused by every call, so Classify must not be called concurrently.
type Server struct {
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewServer(modelPath, metadataPath, libraryPath string) (*Server, error) {
	metadata, err := readMetadata(metadataPath)
	if err != nil {
		return nil, err
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX environment: %v", ErrModelLoad, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: failed to create input tensor: %v", ErrModelLoad, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: failed to create output tensor: %v", ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %v", ErrModelLoad, err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// readMetadata loads the JSON file describing the model and fills in defaults.
func readMetadata(path string) (Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: failed to read metadata: %v", ErrModelLoad, err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("%w: failed to parse metadata: %v", ErrModelLoad, err)
	}

	if len(metadata.InputShape) == 0 {
		metadata.InputShape = InputShape()
	}
	if len(metadata.OutputShape) == 0 {
		metadata.OutputShape = []int64{1, NumClasses}
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	if metadata.ImageSize == 0 {
		metadata.ImageSize = ImageSize
	}
	if len(metadata.Classes) == 0 {
		metadata.Classes = DefaultLabels
	}

	if err := validateMetadata(metadata); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func validateMetadata(m Metadata) error {
	if len(m.Classes) != NumClasses {
		return fmt.Errorf("%w: metadata lists %d classes, want %d", ErrModelLoad, len(m.Classes), NumClasses)
	}
	want := InputShape()
	if m.ImageSize != ImageSize || ort.Shape(m.InputShape).FlattenedSize() != want.FlattenedSize() {
		return fmt.Errorf("%w: model input %v (image size %d) is not %v",
			ErrModelLoad, m.InputShape, m.ImageSize, want)
	}
	if ort.Shape(m.OutputShape).FlattenedSize() != NumClasses {
		return fmt.Errorf("%w: model output %v does not hold %d scores", ErrModelLoad, m.OutputShape, NumClasses)
	}
	return nil
}

func (s *Server) Classify(t Tensor) (Distribution, error) {
	if err := checkInput(t, InputShape()); err != nil {
		return nil, err
	}

	copy(s.inputTensor.GetData(), t.Data)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := s.outputTensor.GetData()
	if len(outputData) != len(s.Metadata.Classes) {
		return nil, fmt.Errorf("%w: model produced %d scores for %d classes",
			ErrShapeMismatch, len(outputData), len(s.Metadata.Classes))
	}

	return ToDistribution(outputData, s.Metadata.Logits)
}

func (s *Server) Labels() []string {
	return s.Metadata.Classes
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
