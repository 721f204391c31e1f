package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/params"
)

const (
	paramsLevel = "params"
	metersLevel = "meters"
	setLevel    = "set"
	stateLevel  = "state"
)

// setFilter is the subscription filter for set messages.
func setFilter(prefix string) string {
	return fmt.Sprintf("%s/%s/+/%s", prefix, paramsLevel, setLevel)
}

func stateTopic(prefix string, id params.ID) string {
	return fmt.Sprintf("%s/%s/%d/%s", prefix, paramsLevel, id, stateLevel)
}

func meterTopic(prefix, capture string, ch int) string {
	return fmt.Sprintf("%s/%s/%s/%d", prefix, metersLevel, capture, ch)
}

// paramKey extracts the <id|name> level of a set topic.
func paramKey(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/"+paramsLevel+"/")
	if !ok {
		return "", false
	}
	key, ok := strings.CutSuffix(rest, "/"+setLevel)
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

// resolveParam maps a numeric id or a case-insensitive name to a parameter id.
func resolveParam(m *params.Mirror, key string) (params.ID, error) {
	if n, err := strconv.Atoi(key); err == nil {
		if _, err := m.Get(params.ID(n)); err != nil {
			return 0, err
		}
		return params.ID(n), nil
	}
	for _, p := range m.Params() {
		if strings.EqualFold(p.Descriptor().Name(), key) {
			return p.Descriptor().ID(), nil
		}
	}
	return 0, errors.New(params.ErrUnknownParameter).
		Component("mqtt").
		Category(errors.CategoryNotFound).
		Context("param", key).
		Build()
}

// command is a decoded set payload.
type command struct {
	toggle bool
	reset  bool
	value  float32
}

func parseCommand(payload []byte) (command, error) {
	s := strings.TrimSpace(string(payload))
	switch strings.ToLower(s) {
	case "toggle":
		return command{toggle: true}, nil
	case "reset":
		return command{reset: true}, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return command{}, errors.New(params.ErrInvalidValue).
			Component("mqtt").
			Category(errors.CategoryValidation).
			Context("payload", s).
			Build()
	}
	return command{value: float32(v)}, nil
}
