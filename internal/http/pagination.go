package httpx

import (
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/target/mmk-dataport/internal/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// page is the window of a list request. Limits above maxListLimit are lowered to it.
type page struct {
	Limit  int
	Offset int
}

func parsePage(q url.Values) (page, error) {
	p := page{Limit: defaultListLimit}

	limit, err := pageParam(q, "limit", 1)
	if err != nil {
		return page{}, err
	}
	if limit != nil {
		p.Limit = min(*limit, maxListLimit)
	}

	offset, err := pageParam(q, "offset", 0)
	if err != nil {
		return page{}, err
	}
	if offset != nil {
		p.Offset = *offset
	}
	return p, nil
}

// pageParam returns nil when key is absent or blank.
func pageParam(q url.Values, key string, floor int) (*int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil //nolint:nilnil // absent parameter
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.ValidationField(key, "Enter a whole number.")
	}
	if n < floor {
		return nil, apperrors.ValidationField(key, "Ensure this value is greater than or equal to "+strconv.Itoa(floor)+".")
	}
	return &n, nil
}
