package room

import "math"

// Fixed atmosphere for air-absorption derivation: 20 °C, 50 % relative
// humidity, 101.325 kPa. The model does not track environmental state.
const (
	airTemperatureK     = 293.15
	airReferenceK       = 293.15
	airTriplePointK     = 273.16
	airRelativeHumidity = 50.0
	airPressureRatio    = 1.0 // 101.325 kPa over the reference pressure
	nepersPerDB         = 1.0 / 8.686
)

// AirAbsorption returns the atmospheric attenuation coefficient at freqHz
// in nepers per meter, following the ISO 9613-1 relaxation model at the
// fixed atmosphere above.
func AirAbsorption(freqHz float64) float64 {
	if freqHz <= 0 {
		return 0
	}

	t := airTemperatureK / airReferenceK

	// Molar concentration of water vapor from relative humidity.
	psat := math.Pow(10, -6.8346*math.Pow(airTriplePointK/airTemperatureK, 1.261)+4.6151)
	h := airRelativeHumidity * psat / airPressureRatio

	// Relaxation frequencies of oxygen and nitrogen.
	frO := airPressureRatio * (24 + 4.04e4*h*(0.02+h)/(0.391+h))
	frN := airPressureRatio * math.Pow(t, -0.5) *
		(9 + 280*h*math.Exp(-4.170*(math.Pow(t, -1.0/3.0)-1)))

	f2 := freqHz * freqHz
	alphaDB := 8.686 * f2 * (1.84e-11*math.Sqrt(t)/airPressureRatio +
		math.Pow(t, -2.5)*(0.01275*math.Exp(-2239.1/airTemperatureK)/(frO+f2/frO)+
			0.1068*math.Exp(-3352.0/airTemperatureK)/(frN+f2/frN)))

	return alphaDB * nepersPerDB
}
