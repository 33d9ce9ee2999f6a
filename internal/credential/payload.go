// Package credential models the JSON payload attached to each secret
// version: the connection fields for one PostgreSQL principal.
package credential

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	// DefaultPort is used when the payload carries no port field.
	DefaultPort = 5432
	// DefaultDBName is used when the payload carries no dbname field.
	DefaultDBName = "postgres"
)

// payloadSchema validates the raw secret string before decoding. Username
// is the only hard requirement; password presence is checked per stage by
// the rotation steps. Port may arrive as a number or a numeric string,
// both occur in secrets provisioned by hand or by CloudFormation.
const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["username"],
  "properties": {
    "username": {"type": "string", "minLength": 1},
    "password": {"type": "string"},
    "host": {"type": "string"},
    "port": {"type": ["integer", "string"]},
    "dbname": {"type": "string"}
  }
}`

// Payload is the structured credential attached to a secret version.
// A version's payload is immutable once written; a new password always
// means a new version.
type Payload struct {
	Username string
	Password string
	Host     string
	Port     int
	DBName   string

	// extra preserves fields outside the connection shape (for example
	// "engine" tags) so that a pending version written from the current
	// one carries them forward unchanged.
	extra map[string]json.RawMessage
}

// Parse validates and decodes a secret string into a Payload, applying
// the port and dbname defaults.
func Parse(raw string) (Payload, error) {
	if err := validateSchema(raw); err != nil {
		return Payload{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Payload{}, fmt.Errorf("failed to decode credential payload: %w", err)
	}

	p := Payload{
		Port:   DefaultPort,
		DBName: DefaultDBName,
		extra:  make(map[string]json.RawMessage),
	}

	for key, value := range fields {
		switch key {
		case "username":
			if err := json.Unmarshal(value, &p.Username); err != nil {
				return Payload{}, fmt.Errorf("invalid username field: %w", err)
			}
		case "password":
			if err := json.Unmarshal(value, &p.Password); err != nil {
				return Payload{}, fmt.Errorf("invalid password field: %w", err)
			}
		case "host":
			if err := json.Unmarshal(value, &p.Host); err != nil {
				return Payload{}, fmt.Errorf("invalid host field: %w", err)
			}
		case "dbname":
			if err := json.Unmarshal(value, &p.DBName); err != nil {
				return Payload{}, fmt.Errorf("invalid dbname field: %w", err)
			}
		case "port":
			port, err := parsePort(value)
			if err != nil {
				return Payload{}, err
			}
			p.Port = port
		default:
			p.extra[key] = value
		}
	}

	return p, nil
}

// Encode renders the payload back to the secret string shape. Extra
// fields captured at parse time are written back verbatim.
func (p Payload) Encode() (string, error) {
	fields := make(map[string]json.RawMessage, len(p.extra)+5)
	for key, value := range p.extra {
		fields[key] = value
	}

	set := func(key string, v interface{}) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s field: %w", key, err)
		}
		fields[key] = data
		return nil
	}

	if err := set("username", p.Username); err != nil {
		return "", err
	}
	if p.Password != "" {
		if err := set("password", p.Password); err != nil {
			return "", err
		}
	}
	if p.Host != "" {
		if err := set("host", p.Host); err != nil {
			return "", err
		}
	}
	if err := set("port", p.Port); err != nil {
		return "", err
	}
	if err := set("dbname", p.DBName); err != nil {
		return "", err
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode credential payload: %w", err)
	}
	return string(out), nil
}

// WithPassword returns a copy of the payload carrying a new password.
// All other fields, including extras, are carried forward.
func (p Payload) WithPassword(password string) Payload {
	next := p
	next.Password = password
	return next
}

// HasPassword reports whether the payload carries a password.
func (p Payload) HasPassword() bool {
	return p.Password != ""
}

// Addr returns host:port for logs and error messages.
func (p Payload) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

func parsePort(value json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(value, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return 0, fmt.Errorf("invalid port field: %s", string(value))
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port field %q: %w", s, err)
	}
	return n, nil
}

func validateSchema(raw string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(payloadSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("credential payload is not valid JSON: %w", err)
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return fmt.Errorf("credential payload failed schema validation:\n  - %s", strings.Join(messages, "\n  - "))
	}

	return nil
}
