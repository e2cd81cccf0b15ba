// Package dhdm computes, encodes and decodes multi-resolution displacement
// files. A file stores, per subdivision level, the offsets that move a
// Catmull-Clark refined base mesh onto a sculpted high resolution mesh,
// each offset expressed in the frame of the base face corner it sits under.
package dhdm

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidLevel reports a subdivision level that cannot be derived or
// encoded.
var ErrInvalidLevel = errors.New("invalid subdivision level")

// RelativeSubdLevel returns how many times a mesh with baseFaces faces was
// subdivided to produce hdFaces faces: round(log4(hdFaces/baseFaces)).
func RelativeSubdLevel(baseFaces, hdFaces int) (int, error) {
	if baseFaces <= 0 || hdFaces <= 0 {
		return 0, fmt.Errorf("%w: face counts %d and %d", ErrInvalidLevel, baseFaces, hdFaces)
	}
	if hdFaces < baseFaces {
		return 0, fmt.Errorf("%w: hd mesh has fewer faces (%d) than the base mesh (%d)",
			ErrInvalidLevel, hdFaces, baseFaces)
	}
	ratio := float64(hdFaces) / float64(baseFaces)
	return int(math.Round(math.Log(ratio) / math.Log(4))), nil
}
