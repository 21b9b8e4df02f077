// Package buildability derives the buildable envelope of a parcel from its
// graphical surface and edificability ratio.
package buildability

import (
	"errors"
	"fmt"
	"math"

	"github.com/parcelaria/api/internal/models"
)

// Calculator errors. Both are caller-fixable input errors.
var (
	ErrUnbuildableParcel = errors.New("parcel has no buildable surface")
	ErrInvalidRatio      = errors.New("edificability ratio must be in (0, 1]")
)

// Envelope is the computed buildable envelope of a parcel.
type Envelope struct {
	MaxBuildableM2 float64
	VirtualPlot    models.VirtualPlot
}

// Validation reasons returned by ValidateAgainstDesign.
const (
	ReasonWithinEnvelope      = "within_envelope"
	ReasonClampedToEnvelope   = "clamped_to_envelope"
	ReasonDefaultedToEnvelope = "defaulted_to_envelope"
)

// Validation is the outcome of checking a requested built surface against a
// parcel envelope.
type Validation struct {
	AcceptedM2 float64
	Reason     string
}

// Compute derives the envelope for a parcel at the given ratio. The virtual
// plot is a square of side sqrt(surface) facing north unless the parcel
// carries a recorded orientation override.
func Compute(parcel *models.Parcel, ratio float64) (*Envelope, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidRatio, ratio)
	}
	if parcel.SurfaceM2 <= 0 {
		return nil, fmt.Errorf("%w: surface is %g m2", ErrUnbuildableParcel, parcel.SurfaceM2)
	}

	side := math.Sqrt(parcel.SurfaceM2)
	orientation := parcel.VirtualPlot.Orientation
	if orientation == "" {
		orientation = "N"
	}

	return &Envelope{
		MaxBuildableM2: parcel.SurfaceM2 * ratio,
		VirtualPlot: models.VirtualPlot{
			Width:       side,
			Depth:       side,
			Orientation: orientation,
		},
	}, nil
}

// ValidateAgainstDesign checks a requested built surface against the parcel
// envelope. Oversized requests are clamped, not rejected; absent or
// non-positive requests default to the full envelope.
func ValidateAgainstDesign(parcel *models.Parcel, requestedBuiltM2 float64) (*Validation, error) {
	envelope, err := Compute(parcel, parcel.Ratio())
	if err != nil {
		return nil, err
	}

	switch {
	case requestedBuiltM2 <= 0:
		return &Validation{AcceptedM2: envelope.MaxBuildableM2, Reason: ReasonDefaultedToEnvelope}, nil
	case requestedBuiltM2 > envelope.MaxBuildableM2:
		return &Validation{AcceptedM2: envelope.MaxBuildableM2, Reason: ReasonClampedToEnvelope}, nil
	default:
		return &Validation{AcceptedM2: requestedBuiltM2, Reason: ReasonWithinEnvelope}, nil
	}
}
