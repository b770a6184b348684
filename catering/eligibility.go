package catering

import (
	"context"
	"fmt"
	"time"

	"github.com/scttfrdmn/catering-agent-go/catalog"
)

// Eligibility messages shown to the user.
const (
	MsgNotPassengerService = "We regret to inform you that meal services are only available for passenger flights (service type J). This flight appears to be a different service type and does not have meal ordering facilities."
	MsgDeparted            = "We apologize, but meal ordering is not available as this flight has already departed."
	MsgFinalized           = "We regret to inform you that meal orders cannot be processed as this flight has been finalized."
	MsgEligible            = "Meal orders can be placed for this flight."
	MsgFlightNotFound      = "Flight information not found for the specified flight number and date."
	MsgNoMealOrder         = "No meal order details found for this flight."
)

// CheckMealEligibility applies the meal ordering rules to a flight, in
// order: passenger service type, not yet departed, not finalized. A flight
// dated today has not departed. Dates are compared in now's location.
func CheckMealEligibility(f catalog.Flight, now time.Time) (bool, string) {
	if f.ServiceType != catalog.ServiceTypePassenger {
		return false, MsgNotPassengerService
	}

	date, err := time.ParseInLocation(catalog.FlightDateLayout, f.FlightDate, now.Location())
	if err != nil {
		return false, fmt.Sprintf("Flight date %q is not in DD-MMM-YYYY format.", f.FlightDate)
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if date.Before(today) {
		return false, MsgDeparted
	}

	if f.FlightStatus == catalog.FlightStatusFinalized {
		return false, MsgFinalized
	}
	return true, MsgEligible
}

// EligibilityReport is the result of the check_meal_eligibility tool.
type EligibilityReport struct {
	Status    string             `json:"status"`
	Eligible  bool               `json:"eligible"`
	Reason    string             `json:"reason"`
	Flight    *catalog.Flight    `json:"flight,omitempty"`
	MealOrder *catalog.MealOrder `json:"meal_order,omitempty"`
	Note      string             `json:"note,omitempty"`
}

func (t *Toolkit) mealEligibility(ctx context.Context, flightNo, flightDate string) (EligibilityReport, error) {
	fr, err := t.catalog.GetFlightDetails(ctx, flightNo, flightDate)
	if err != nil {
		return EligibilityReport{}, err
	}
	if fr.Status != catalog.StatusSuccess {
		msg := fr.Message
		if flightNo != "" {
			msg = MsgFlightNotFound
		}
		return EligibilityReport{Status: catalog.StatusError, Reason: msg}, nil
	}

	eligible, reason := CheckMealEligibility(*fr.Data, t.now())
	report := EligibilityReport{Status: catalog.StatusSuccess, Eligible: eligible, Reason: reason, Flight: fr.Data}

	mr, err := t.catalog.GetMealOrderDetails(ctx, fr.Data.MflID)
	if err != nil {
		return EligibilityReport{}, err
	}
	if mr.Status == catalog.StatusSuccess {
		report.MealOrder = mr.Data
	} else {
		report.Note = MsgNoMealOrder
	}
	return report, nil
}
