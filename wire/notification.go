package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-rfp/core"
)

const internalRoutingPrefix = "INTERNAL"

// Notification is the stripped envelope forwarded on the internal routing key.
type Notification struct {
	Version int             `json:"version"`
	Context core.Payload    `json:"context"`
	Data    json.RawMessage `json:"data"`
}

type RequestNotificationData struct {
	RFPID          string       `json:"rfpId"`
	SenderStaticID string       `json:"senderStaticID"`
	ProductRequest core.Payload `json:"productRequest,omitempty"`
	DocumentIDs    []string     `json:"documentIds,omitempty"`
}

type ReplyNotificationData struct {
	RFPID          string       `json:"rfpId"`
	SenderStaticID string       `json:"senderStaticID"`
	Response       core.Payload `json:"response,omitempty"`
}

func NotificationFor(msg Message) (Notification, error) {
	var data any
	if msg.Type == core.ActionTypeRequest {
		data = RequestNotificationData{
			RFPID:          msg.Header.RFPID,
			SenderStaticID: msg.Header.SenderStaticID,
			ProductRequest: msg.ProductRequest,
			DocumentIDs:    msg.DocumentIDs,
		}
	} else {
		data = ReplyNotificationData{
			RFPID:          msg.Header.RFPID,
			SenderStaticID: msg.Header.SenderStaticID,
			Response:       msg.Response,
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Notification{}, core.BadInputError(fmt.Sprintf("wire: encode notification: %v", err), map[string]any{
			"action_id": msg.Header.ActionID,
		})
	}
	return Notification{Version: msg.Version, Context: msg.Context, Data: raw}, nil
}

func EncodeNotification(notification Notification) ([]byte, error) {
	body, err := json.Marshal(notification)
	if err != nil {
		return nil, core.BadInputError(fmt.Sprintf("wire: encode notification: %v", err), nil)
	}
	return body, nil
}

// RoutingKey derives INTERNAL.<namespace>.<productId>.<subProductId>.<ActionType> from the RFP context.
func RoutingKey(namespace string, context core.Payload, actionType core.ActionType) (string, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = core.DefaultNotificationNamespace
	}
	routing, err := core.ParseRoutingContext(context)
	if err != nil {
		return "", err
	}
	if !actionType.Valid() {
		return "", core.BadInputError(fmt.Sprintf("wire: unsupported action type %q", actionType), nil)
	}
	return strings.Join([]string{internalRoutingPrefix, namespace, routing.ProductID, routing.SubProductID, string(actionType)}, "."), nil
}
