package notify

import (
	"encoding/json"
	"fmt"

	"fleet-monitor/livemap/internal/domain"
)

func encodeNotice(notice domain.AlertNotice) ([]byte, error) {
	body, err := json.Marshal(notice)
	if err != nil {
		return nil, fmt.Errorf("marshal alert %s: %w", notice.Alert.ID, err)
	}
	return body, nil
}
