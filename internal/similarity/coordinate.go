package similarity

import "math"

// earthRadiusKm is the sphere radius used for great-circle distances.
const earthRadiusKm = 6371

// Haversine calculates the great-circle distance in kilometers between
// two points given in decimal degrees.
func Haversine(long1, lat1, long2, lat2 float64) float64 {
	long1 = radians(long1)
	lat1 = radians(lat1)
	long2 = radians(long2)
	lat2 = radians(lat2)

	dlong := long2 - long1
	dlat := lat2 - lat1
	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlong/2), 2)
	c := 2 * math.Asin(math.Sqrt(a))

	return c * earthRadiusKm
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
