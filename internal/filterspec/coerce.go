package filterspec

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Coercer checks that v can be read as a field type and returns a user-facing message if not.
type Coercer func(v string) string

const dateLayout = "2006-01-02"

func coercerFor(t FieldType) Coercer {
	switch t {
	case TypeString, "":
		return func(string) string { return "" }
	case TypeInteger:
		return func(v string) string {
			if _, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
				return "Enter a number."
			}
			return ""
		}
	case TypeFloat:
		return func(v string) string {
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
				return "Enter a number."
			}
			return ""
		}
	case TypeBoolean:
		return boolCoercer
	case TypeDate:
		return func(v string) string {
			if _, err := time.Parse(dateLayout, strings.TrimSpace(v)); err != nil {
				return "Enter a valid date."
			}
			return ""
		}
	case TypeUUID:
		return func(v string) string {
			if _, err := uuid.Parse(strings.TrimSpace(v)); err != nil {
				return "Enter a valid UUID."
			}
			return ""
		}
	default:
		return nil
	}
}

func boolCoercer(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "false", "1", "0", "yes", "no":
		return ""
	default:
		return "Enter a valid boolean."
	}
}

// ParseBool reads a boolean filter value accepted by the boolean coercer.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// coerceLookup validates value for field f under lookup.
func coerceLookup(f Field, lookup, value string) string {
	switch lookup {
	case LookupIsNull:
		return boolCoercer(value)
	case LookupIn:
		c := coercerFor(f.Type)
		for item := range strings.SplitSeq(value, ",") {
			if msg := c(item); msg != "" {
				return msg
			}
		}
		return ""
	default:
		return coercerFor(f.Type)(value)
	}
}
