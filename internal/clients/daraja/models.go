package daraja

import "encoding/json"

// tokenResponse is the OAuth credential-exchange reply
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"` // seconds, delivered as a string
}

// STKPushResponse is the synchronous reply to an STK push request
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// MetadataItem is one {Name, Value} entry of the callback metadata list.
// Value is a number for amounts and phone numbers, a string for receipts.
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// STKCallback is the asynchronous result of an STK push
type STKCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []MetadataItem `json:"Item"`
	} `json:"CallbackMetadata,omitempty"`
}

// STKCallbackEnvelope is the outer callback payload shape
type STKCallbackEnvelope struct {
	Body struct {
		StkCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// MetadataValue returns the named metadata item's value rendered as a string,
// or "" when absent. The gateway mixes numeric and string values freely, so
// everything is normalized through json.Number-style formatting.
func (c *STKCallback) MetadataValue(name string) string {
	if c.CallbackMetadata == nil {
		return ""
	}
	for _, item := range c.CallbackMetadata.Item {
		if item.Name == name {
			return stringifyValue(item.Value)
		}
	}
	return ""
}

func stringifyValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	default:
		// Fall back to JSON rendering for numbers decoded as float64 etc.
		data, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// C2BConfirmation is the payer-initiated payment confirmation payload
type C2BConfirmation struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
}

// GatewayAck is the acknowledgement every callback endpoint must answer with.
// The gateway retries on anything else, so even failed processing acks 0.
type GatewayAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// AckAccepted is the standard success acknowledgement
func AckAccepted(desc string) GatewayAck {
	return GatewayAck{ResultCode: 0, ResultDesc: desc}
}
