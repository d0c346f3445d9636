package evaluation

import (
	"github.com/tablefill/table-fill/internal/pkg/logger"
	"github.com/tablefill/table-fill/internal/similarity"
	"github.com/tablefill/table-fill/internal/table"
	"github.com/tablefill/table-fill/internal/values"
)

// maxCoordinateDistanceKm is the great-circle distance under which two
// coordinates count as the same location, boundary inclusive.
const maxCoordinateDistanceKm = 0.1

// Coordinate is a (longitude, latitude) pair in decimal degrees.
type Coordinate struct {
	Longitude float64
	Latitude  float64
}

// CalculateAccuracy scores a predicted value against the target value for
// the given datatype: 1 for a match, 0 otherwise. Coordinates match when
// they are at most 0.1 km apart.
func CalculateAccuracy(predicted, target string, datatype string) float64 {
	if datatype == values.TypeCoordinate {
		// Scalar coordinate comparison without a counterpart axis is
		// handled by CoordinateAccuracy; a bare string comparison of
		// normalized values is the best this signature can do.
		if values.NormalizeCoordinate(predicted) == values.NormalizeCoordinate(target) {
			return 1
		}
		return 0
	}

	if predicted == target {
		return 1
	}
	return 0
}

// CoordinateAccuracy scores two full coordinates by haversine distance.
func CoordinateAccuracy(predicted, target Coordinate) float64 {
	distance := similarity.Haversine(target.Longitude, target.Latitude, predicted.Longitude, predicted.Latitude)
	if distance <= maxCoordinateDistanceKm {
		return 1
	}
	return 0
}

// counterpartAttribute maps each coordinate axis to its complement.
func counterpartAttribute(attribute string) string {
	if attribute == "latitude" {
		return "longitude"
	}
	return "latitude"
}

// determineFullCoordinates resolves the predicted scalar and the row's
// target value into full (longitude, latitude) pairs. The predicted
// counterpart axis is taken from the first evidence whose context proposed
// the winning value; absent counterparts default to 0. A parse failure of
// any component returns ok=false.
func determineFullCoordinates(predicted string, targetAttribute string, row table.Row, evidences []*table.Evidence, log *logger.Logger) (predictedCoord, targetCoord Coordinate, ok bool) {
	counterpart := counterpartAttribute(targetAttribute)

	predictedParts := map[string]string{
		targetAttribute: predicted,
		counterpart:     "0",
	}
	for _, evidence := range evidences {
		raw, found := evidence.Context[targetAttribute]
		if !found {
			continue
		}
		text, isString := raw.(string)
		if !isString || values.NormalizeCoordinate(text) != predicted {
			continue
		}
		if complement, found := evidence.Context[counterpart]; found {
			if text, isString := complement.(string); isString {
				predictedParts[counterpart] = text
			}
		}
		break
	}

	targetParts := map[string]string{
		targetAttribute: rowText(row, targetAttribute),
		counterpart:     rowText(row, counterpart),
	}

	parse := func(parts map[string]string) (Coordinate, bool) {
		longitude, err := values.ParseCoordinate(parts["longitude"])
		if err != nil {
			log.Warn("malformed longitude", "value", parts["longitude"])
			return Coordinate{}, false
		}
		latitude, err := values.ParseCoordinate(parts["latitude"])
		if err != nil {
			log.Warn("malformed latitude", "value", parts["latitude"])
			return Coordinate{}, false
		}
		return Coordinate{Longitude: longitude, Latitude: latitude}, true
	}

	predictedCoord, ok = parse(predictedParts)
	if !ok {
		return Coordinate{}, Coordinate{}, false
	}
	targetCoord, ok = parse(targetParts)
	if !ok {
		return Coordinate{}, Coordinate{}, false
	}

	return predictedCoord, targetCoord, true
}

func rowText(row table.Row, attribute string) string {
	if value, ok := row.Get(attribute); ok {
		return value.Text()
	}
	return ""
}
