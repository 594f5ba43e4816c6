package phonepe

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/fleetrent/internal/payment/domain"
)

const Provider = "phonepe"

const (
	eventOrderCompleted = "checkout.order.completed"
	eventOrderFailed    = "checkout.order.failed"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	username, _ := readString(cfg.Config, "username")
	password, _ := readString(cfg.Config, "password")
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	sum := sha256.Sum256([]byte(username + ":" + password))
	return &Adapter{expectedAuth: hex.EncodeToString(sum[:])}, nil
}

type Adapter struct {
	expectedAuth string
}

// Verify checks the Authorization header, which PhonePe sets to
// hex(SHA256("username:password")) using the credentials configured on the dashboard.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	auth := strings.TrimSpace(headers.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "sha256 ") {
		auth = strings.TrimSpace(auth[7:])
	}
	if auth == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(auth)), []byte(a.expectedAuth)) != 1 {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.GatewayEvent, error) {
	var event callback
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	var status string
	switch strings.TrimSpace(event.Event) {
	case eventOrderCompleted:
		status = "captured"
	case eventOrderFailed:
		status = "failed"
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	order := event.Payload
	if strings.TrimSpace(order.OrderID) == "" && strings.TrimSpace(order.MerchantOrderID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	selectionRaw := readMetadataValue(order.MetaInfo, "udf1")
	if selectionRaw == "" {
		return nil, paymentdomain.ErrInvalidSelectionRef
	}
	selectionID, err := snowflake.ParseString(selectionRaw)
	if err != nil || selectionID == 0 {
		return nil, paymentdomain.ErrInvalidSelectionRef
	}

	var detail paymentDetail
	if n := len(order.PaymentDetails); n > 0 {
		detail = order.PaymentDetails[n-1]
	}
	amountPaise := order.Amount
	if amountPaise == 0 {
		amountPaise = detail.Amount
	}
	occurredAt := timestamp(detail.Timestamp)

	orderRef := strings.TrimSpace(order.OrderID)
	if orderRef == "" {
		orderRef = strings.TrimSpace(order.MerchantOrderID)
	}

	return &paymentdomain.GatewayEvent{
		Gateway:         Provider,
		ProviderEventID: fmt.Sprintf("%s:%s", event.Event, orderRef),
		EventType:       event.Event,
		SelectionID:     selectionID,
		Outcome: paymentdomain.GatewayOutcome{
			TransactionID:   strings.TrimSpace(detail.TransactionID),
			MerchantOrderID: strings.TrimSpace(order.MerchantOrderID),
			Amount:          decimal.New(amountPaise, -2),
			Status:          status,
			Type:            readMetadataValue(order.MetaInfo, "udf2"),
			PaymentToken:    strings.TrimSpace(order.OrderID),
			Gateway:         Provider,
			OccurredAt:      occurredAt,
		},
		RawPayload: payload,
	}, nil
}

type callback struct {
	Event   string `json:"event"`
	Payload order  `json:"payload"`
}

type order struct {
	OrderID         string          `json:"orderId"`
	MerchantID      string          `json:"merchantId"`
	MerchantOrderID string          `json:"merchantOrderId"`
	State           string          `json:"state"`
	Amount          int64           `json:"amount"`
	MetaInfo        map[string]any  `json:"metaInfo"`
	PaymentDetails  []paymentDetail `json:"paymentDetails"`
}

type paymentDetail struct {
	PaymentMode   string `json:"paymentMode"`
	TransactionID string `json:"transactionId"`
	Timestamp     int64  `json:"timestamp"`
	Amount        int64  `json:"amount"`
	State         string `json:"state"`
}

// timestamp converts PhonePe epoch milliseconds.
func timestamp(millis int64) *time.Time {
	if millis <= 0 {
		return nil
	}
	at := time.UnixMilli(millis).UTC()
	return &at
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}

func readString(config map[string]any, key string) (string, bool) {
	value, ok := config[key]
	if !ok {
		return "", false
	}
	switch cast := value.(type) {
	case string:
		return cast, true
	default:
		return "", false
	}
}
