package analytics

import "swing-service/internal/models"

const (
	ArmLengthM    = 0.6
	RacketLengthM = 0.7
	// TotalLengthM approximates the radius from shoulder to racket head.
	TotalLengthM = ArmLengthM + RacketLengthM

	mpsToMPH = 2.237
)

// EstimateSpeedMPH converts the peak angular rate into an approximate
// racket-head speed.
func EstimateSpeedMPH(e models.SwingEvent) float64 {
	return e.RotationMagnitude * TotalLengthM * mpsToMPH
}

// ClassifySwing labels a swing. No classifier is trained yet, so every swing
// is reported as unknown.
func ClassifySwing(models.SwingEvent) models.SwingType {
	return models.SwingUnknown
}
