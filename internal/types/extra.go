package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TPSLSetting is a single take-profit / stop-loss instruction attached to
// a buy. TriggerValue is a percentage offset from the entry price
// (positive = take profit, negative = stop loss); SellPercentage is the
// share of the filled amount to liquidate when it fires.
type TPSLSetting struct {
	TriggerValue   decimal.Decimal `json:"trigger_value"`
	SellPercentage decimal.Decimal `json:"sell_percentage"`
}

// NoOp reports the {-100, 100} pair used by clients to mean "no TP/SL".
func (s TPSLSetting) NoOp() bool {
	return s.TriggerValue.Equal(decimal.NewFromInt(-100)) &&
		s.SellPercentage.Equal(decimal.NewFromInt(100))
}

// DerivedFrom links a TP/SL sell order back to the parent fill it was
// derived from.
type DerivedFrom struct {
	ParentRef      string          `json:"parent_ref"`
	TriggerValue   decimal.Decimal `json:"trigger_value"`
	SellPercentage decimal.Decimal `json:"sell_percentage"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	EntryAmount    decimal.Decimal `json:"entry_amount"`
}

// ExecutionDetail records the settlement outcome on a completed order.
type ExecutionDetail struct {
	Ref        string          `json:"ref"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// OrderExtra is the structured payload behind Order.Extra. It is a tagged
// variant: any combination of fields may be absent, and it only ever
// becomes JSON at the storage boundary.
type OrderExtra struct {
	TPSLSettings []TPSLSetting    `json:"tpsl_settings,omitempty"`
	DerivedFrom  *DerivedFrom     `json:"derived_from,omitempty"`
	Execution    *ExecutionDetail `json:"execution,omitempty"`
}

// DecodeExtra parses the stored payload. An empty column decodes to the
// zero value rather than an error.
func (o *Order) DecodeExtra() (OrderExtra, error) {
	var extra OrderExtra
	if o.Extra == "" {
		return extra, nil
	}
	if err := json.Unmarshal([]byte(o.Extra), &extra); err != nil {
		return OrderExtra{}, err
	}
	return extra, nil
}

// EncodeExtra serializes extra into the stored payload.
func (o *Order) EncodeExtra(extra OrderExtra) error {
	raw, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	o.Extra = string(raw)
	return nil
}
