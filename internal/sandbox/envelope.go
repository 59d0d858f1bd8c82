package sandbox

import "encoding/json"

// The host surface exchanges small JSON envelopes with the guest over the
// packed-string ABI, independent of whatever schema a tool itself defines.

type errorEnvelopeBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func errorEnvelope(err error) string {
	data, _ := json.Marshal(errorEnvelopeBody{OK: false, Error: err.Error()})
	return string(data)
}

func errorEnvelopeString(msg string) string {
	data, _ := json.Marshal(errorEnvelopeBody{OK: false, Error: msg})
	return string(data)
}

type okEnvelopeBody struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

func okEnvelope(result any) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return errorEnvelopeString(err.Error())
	}
	data, _ := json.Marshal(okEnvelopeBody{OK: true, Result: raw})
	return string(data)
}

func secretExistsEnvelope(exists bool) string {
	return okEnvelope(map[string]bool{"exists": exists})
}
