// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. validator caches struct
// metadata, so a single instance is reused across requests.
var validate = validator.New(validator.WithRequiredStructEnabled())

// recommendationParams carries the parsed and validated inputs of a
// recommendation request.
type recommendationParams struct {
	UserID string `validate:"required,max=256"`
	Limit  int    `validate:"gte=0,lte=1000"`
	Offset int    `validate:"gte=0"`
}

// parseRecommendationParams extracts user ID and pagination from the request.
// Absent limit/offset stay zero; the scorer applies its own defaults and caps.
func parseRecommendationParams(r *http.Request, userID string) (*recommendationParams, error) {
	params := &recommendationParams{UserID: userID}

	var err error
	if params.Limit, err = parseIntParam(r, "limit", 0); err != nil {
		return nil, err
	}
	if params.Offset, err = parseIntParam(r, "offset", 0); err != nil {
		return nil, err
	}

	if err := validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, fmt.Errorf("invalid %s: failed %s constraint", fieldQueryName(fe.Field()), fe.Tag())
		}
		return nil, err
	}

	return params, nil
}

// parseIntParam reads an integer query parameter, returning def when absent.
func parseIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer", name)
	}
	return v, nil
}

// fieldQueryName maps struct field names back to their query/path names
// for error messages.
func fieldQueryName(field string) string {
	switch field {
	case "UserID":
		return "user ID"
	case "Limit":
		return "limit"
	case "Offset":
		return "offset"
	default:
		return field
	}
}
