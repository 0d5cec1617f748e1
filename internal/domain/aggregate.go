package domain

// SweepAggregate summarizes one performance metric across the runs of a sweep job.
// Primary key: (JobID, Metric).
type SweepAggregate struct {
	JobID  string
	Metric string
	Runs   int

	BestRunID string
	BestValue float64

	Mean   float64
	Median float64
	P10    float64
	P25    float64
	P75    float64
	P90    float64
	Min    float64
	Max    float64
	Stddev float64
}
