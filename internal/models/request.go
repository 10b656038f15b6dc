package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ForecastRequest asks for hourly data at one point over [Start, End].
type ForecastRequest struct {
	Latitude  float64   `json:"lat" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"lon" validate:"gte=-180,lte=180"`
	Elevation float64   `json:"elevation" validate:"gte=-500,lte=9000"`
	Start     time.Time `json:"start" validate:"required"`
	End       time.Time `json:"end" validate:"required"`
}

func (r ForecastRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			reason := "failed " + fe.Tag()
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("%s (got %v)", reason, fe.Value())}
		}
		return &ValidationError{Reason: err.Error()}
	}
	if r.Start.Location() != time.UTC {
		return &ValidationError{Field: "Start", Reason: "timestamp must be UTC"}
	}
	if r.End.Location() != time.UTC {
		return &ValidationError{Field: "End", Reason: "timestamp must be UTC"}
	}
	if !r.Start.Before(r.End) {
		return &ValidationError{Field: "End", Reason: "window end must be after start"}
	}
	return nil
}
