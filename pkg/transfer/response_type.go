package transfer

import (
	"fmt"

	"github.com/wandb/simplejsonext"
)

// ResponseType is the expected kind of a transfer's response payload.
//
// It affects how the response body is decoded, not how it is validated.
type ResponseType int

const (
	// ResponseText decodes the payload as a plain string.
	ResponseText = ResponseType(iota)

	// ResponseBytes returns the raw payload bytes.
	ResponseBytes

	// ResponseBlob wraps the payload in a Blob with the response's
	// content type.
	ResponseBlob

	// ResponseDocument returns the payload as markup text for the host
	// to parse.
	ResponseDocument

	// ResponseJSON decodes the payload as JSON.
	ResponseJSON
)

func (rt ResponseType) String() string {
	switch rt {
	case ResponseText:
		return "text"
	case ResponseBytes:
		return "bytes"
	case ResponseBlob:
		return "blob"
	case ResponseDocument:
		return "document"
	case ResponseJSON:
		return "json"
	default:
		return fmt.Sprintf("ResponseType(%d)", int(rt))
	}
}

// isTextual reports whether error messages may be read from a response
// body of this type.
func (rt ResponseType) isTextual() bool {
	return rt == ResponseText || rt == ResponseDocument
}

// decodePayload converts raw response bytes into the terminal payload
// for the expected response type.
func decodePayload(
	rt ResponseType,
	contentType string,
	data []byte,
) (any, error) {
	switch rt {
	case ResponseBytes:
		return data, nil
	case ResponseBlob:
		return &Blob{ContentType: contentType, Data: data}, nil
	case ResponseJSON:
		value, err := simplejsonext.UnmarshalString(string(data))
		if err != nil {
			return nil, fmt.Errorf("transfer: failed to decode JSON response: %v", err)
		}
		return value, nil
	case ResponseText, ResponseDocument:
		return string(data), nil
	default:
		return nil, fmt.Errorf("transfer: unknown response type %v", rt)
	}
}
