package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rewired-gh/postureguard/internal/models"
)

// Decode parses one sample from either a JSON object or a CSV line of 3, 6 or 12
// numbers:
//
//	pitch,roll,yaw[,rotX,rotY,rotZ[,accX,accY,accZ,gravX,gravY,gravZ]]
//
// With radians set the three angles are converted to degrees.
func Decode(data []byte, radians bool) (models.OrientationSample, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return models.OrientationSample{}, fmt.Errorf("empty sample")
	}

	var s models.OrientationSample
	var err error
	if strings.HasPrefix(text, "{") {
		err = json.Unmarshal([]byte(text), &s)
	} else {
		s, err = decodeCSV(text)
	}
	if err != nil {
		return models.OrientationSample{}, err
	}
	if radians {
		s = s.RadiansToDegrees()
	}
	if err := s.Validate(); err != nil {
		return models.OrientationSample{}, fmt.Errorf("invalid sample: %w", err)
	}
	return s, nil
}

func decodeCSV(line string) (models.OrientationSample, error) {
	fields := strings.Split(line, ",")
	switch len(fields) {
	case 3, 6, 12:
	default:
		return models.OrientationSample{}, fmt.Errorf("expected 3, 6 or 12 fields, got %d", len(fields))
	}

	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return models.OrientationSample{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	s := models.OrientationSample{Pitch: vals[0], Roll: vals[1], Yaw: vals[2]}
	if len(vals) >= 6 {
		s.RotationRate = models.Vector3{X: vals[3], Y: vals[4], Z: vals[5]}
	}
	if len(vals) == 12 {
		s.UserAcceleration = models.Vector3{X: vals[6], Y: vals[7], Z: vals[8]}
		s.Gravity = models.Vector3{X: vals[9], Y: vals[10], Z: vals[11]}
	}
	return s, nil
}
