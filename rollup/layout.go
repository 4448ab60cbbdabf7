/*
layout.go - Deterministic artifact paths

PURPOSE:
  Every stage (and the query layer) derives artifact locations as a pure
  function of the data root and the run date. No stage hands a path to
  another stage in memory, so a stage invoked standalone during recovery
  resolves the same files as the stage that wrote them.

LAYOUT:
  {root}/{year}/{month}/daily-reading/{month}-{day}.csv
  {root}/{year}/{month}/monthly-reading-{year}-{month}.csv
  {root}/{year}/{month}/daily-consumption/{month}-{day}.csv
  {root}/{year}/{month}/monthly-consumption-{year}-{month}.csv
*/
package rollup

import (
	"fmt"
	"path/filepath"
)

func monthDir(root string, d RunDate) string {
	return filepath.Join(root, d.Year(), d.Month())
}

// DailyReadingPath locates the day's canonical reading table.
func DailyReadingPath(root string, d RunDate) string {
	return filepath.Join(monthDir(root, d), "daily-reading", d.DayLabel()+".csv")
}

// MonthlyReadingPath locates the month's cumulative reading accumulator.
func MonthlyReadingPath(root string, d RunDate) string {
	return filepath.Join(monthDir(root, d), fmt.Sprintf("monthly-reading-%s-%s.csv", d.Year(), d.Month()))
}

// DailyConsumptionPath locates the day's per-slot consumption table.
func DailyConsumptionPath(root string, d RunDate) string {
	return filepath.Join(monthDir(root, d), "daily-consumption", d.DayLabel()+".csv")
}

// MonthlyConsumptionPath locates the month's consumption accumulator.
func MonthlyConsumptionPath(root string, d RunDate) string {
	return filepath.Join(monthDir(root, d), fmt.Sprintf("monthly-consumption-%s-%s.csv", d.Year(), d.Month()))
}
