// Package alerts evaluates threshold rules against each newly produced
// snapshot and delivers webhook notifications when rules fire or resolve.
// Rules are simple "reading op threshold" expressions over snapshot reading
// keys; they carry a severity label and a re-fire cooldown.
package alerts
