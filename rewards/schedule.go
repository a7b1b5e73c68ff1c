package rewards

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Event types with a default rate.
const (
	EventFileUpload   = "FILE_UPLOAD"
	EventFileDownload = "FILE_DOWNLOAD"
	EventFileShare    = "FILE_SHARE"
	EventDailyLogin   = "DAILY_LOGIN"
	EventReferral     = "REFERRAL"
)

// maxAmount is the largest transfer in the token's smallest unit.
var maxAmount = decimal.NewFromInt(math.MaxInt64)

// UploadRate is the base rate the other default rates derive from.
var UploadRate = decimal.NewFromInt(10)

// Schedule maps event types to their rate in whole token units.
type Schedule map[string]decimal.Decimal

// DefaultSchedule returns the built-in rates.
func DefaultSchedule() Schedule {
	return Schedule{
		EventFileUpload:   UploadRate,
		EventFileDownload: UploadRate.Div(decimal.NewFromInt(5)),
		EventFileShare:    UploadRate.Div(decimal.NewFromInt(2)),
		EventDailyLogin:   UploadRate.Div(decimal.NewFromInt(10)),
		EventReferral:     UploadRate.Mul(decimal.NewFromInt(10)),
	}
}

type scheduleFile struct {
	Rates map[string]string `yaml:"rates"`
}

// ParseSchedule reads a YAML schedule of the form
//
//	rates:
//	  FILE_UPLOAD: "10"
//	  FILE_SHARE: "5"
//
// Listed rates replace the defaults; unlisted defaults are kept.
func ParseSchedule(data []byte) (Schedule, error) {
	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid reward schedule: %w", err)
	}

	schedule := DefaultSchedule()
	for event, raw := range file.Rates {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", event, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be positive, got %s", event, rate)
		}
		schedule[strings.ToUpper(event)] = rate
	}
	return schedule, nil
}

// LoadSchedule reads a YAML schedule from path.
func LoadSchedule(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reward schedule: %w", err)
	}
	return ParseSchedule(data)
}

// Validate checks that every rate is positive and representable in the
// token's smallest unit, and that the largest reward fits an int64 amount.
func (s Schedule) Validate(decimals uint, maxMultiplier int64) error {
	if len(s) == 0 {
		return fmt.Errorf("reward schedule is empty")
	}
	for _, event := range s.Events() {
		rate := s[event]
		if !rate.IsPositive() {
			return fmt.Errorf("rate for %s must be positive, got %s", event, rate)
		}
		if !rate.Shift(int32(decimals)).IsInteger() {
			return fmt.Errorf("rate for %s has more than %d decimal places", event, decimals)
		}
		largest := rate.Mul(decimal.NewFromInt(maxMultiplier)).Shift(int32(decimals))
		if largest.GreaterThan(maxAmount) {
			return fmt.Errorf("rate for %s times %d overflows the token amount", event, maxMultiplier)
		}
	}
	return nil
}

// Events returns the scheduled event types in lexical order.
func (s Schedule) Events() []string {
	events := make([]string, 0, len(s))
	for e := range s {
		events = append(events, e)
	}
	sort.Strings(events)
	return events
}

// Amount returns the reward for eventType at multiplier, in whole token units.
func (s Schedule) Amount(eventType string, multiplier int64) (decimal.Decimal, bool) {
	rate, ok := s[eventType]
	if !ok {
		return decimal.Zero, false
	}
	return rate.Mul(decimal.NewFromInt(multiplier)), true
}
