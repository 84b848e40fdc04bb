package websocket

import (
	"encoding/json"

	"devchat/internal/models"
)

func marshalEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&models.Envelope{Event: event, Data: raw})
}
