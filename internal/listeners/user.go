package listeners

import (
	"fmt"
	"strings"

	"github.com/mithra-energy/mithra/internal/model"
)

// ParseUserTopic extracts the miner id from "user/<mid>".
func ParseUserTopic(topic string) (minerID string, err error) {
	parts := strings.SplitN(topic, "/", 2)
	if len(parts) != 2 || parts[0] != "user" || parts[1] == "" {
		return "", fmt.Errorf("user: malformed user topic %q", topic)
	}
	return parts[1], nil
}

// ParseUserPayload parses an Include/Exclude command body.
func ParseUserPayload(minerID string, payload []byte) (model.UserMessage, error) {
	cmd, ok := model.ParseUserCommand(strings.TrimSpace(string(payload)))
	if !ok {
		return model.UserMessage{}, fmt.Errorf("user: unrecognized command %q for miner %q", string(payload), minerID)
	}
	return model.UserMessage{MinerID: minerID, Command: cmd}, nil
}
