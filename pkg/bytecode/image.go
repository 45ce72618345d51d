package bytecode

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// ImageVersion is the current image container version.
const ImageVersion uint16 = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image wraps an encoded program with the names of its functions and build
// metadata.
type Image struct {
	Version   uint16   `cbor:"1,keyasint"`
	BuildID   string   `cbor:"2,keyasint"`
	Entry     string   `cbor:"3,keyasint"`
	Functions []string `cbor:"4,keyasint,omitempty"` // names by function index
	Program   []byte   `cbor:"5,keyasint"`           // Encode output
	Created   int64    `cbor:"6,keyasint"`           // unix seconds
}

// NewImage encodes a program and stamps it with a fresh build id.
func NewImage(entry string, names []string, main []Instruction, others [][]Instruction) (*Image, error) {
	program, err := Encode(main, others)
	if err != nil {
		return nil, err
	}
	return &Image{
		Version:   ImageVersion,
		BuildID:   uuid.New().String(),
		Entry:     entry,
		Functions: names,
		Program:   program,
		Created:   time.Now().Unix(),
	}, nil
}

// Decode decodes the wrapped program.
func (img *Image) Decode() ([]Instruction, [][]Instruction, error) {
	return Decode(img.Program)
}

// FunctionName returns the recorded name of function i, or a placeholder.
func (img *Image) FunctionName(i int) string {
	if i >= 0 && i < len(img.Functions) && img.Functions[i] != "" {
		return img.Functions[i]
	}
	if i == 0 {
		return "main"
	}
	return fmt.Sprintf("function %d", i)
}

// MarshalImage serializes an Image to CBOR bytes.
func MarshalImage(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// UnmarshalImage deserializes an Image from CBOR bytes.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal image: %w", err)
	}
	if img.Version > ImageVersion {
		return nil, fmt.Errorf("bytecode: image version %d is newer than supported version %d", img.Version, ImageVersion)
	}
	return &img, nil
}

// IsRawProgram reports whether data starts with the program magic rather
// than an image.
func IsRawProgram(data []byte) bool {
	return bytes.HasPrefix(data, BytecodeMagic)
}

// ReadProgram decodes either a raw program or an image. The image is nil for raw
// programs.
func ReadProgram(data []byte) ([]Instruction, [][]Instruction, *Image, error) {
	if IsRawProgram(data) {
		main, others, err := Decode(data)
		return main, others, nil, err
	}

	img, err := UnmarshalImage(data)
	if err != nil {
		return nil, nil, nil, err
	}
	main, others, err := img.Decode()
	if err != nil {
		return nil, nil, nil, err
	}
	return main, others, img, nil
}
