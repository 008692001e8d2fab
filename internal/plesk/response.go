package plesk

import (
	"encoding/xml"
	"fmt"
)

// Response element names are kept as slices so that the number of
// occurrences of a supposedly singular element can be checked.

type result struct {
	Status  []string `xml:"status"`
	ErrCode []string `xml:"errcode"`
	ErrText []string `xml:"errtext"`
}

type siteGetResult struct {
	result
	ID   []string `xml:"id"`
	Name []string `xml:"data>gen_info>name"`
}

type mailInfoResult struct {
	result
	Mailname []struct {
		Alias []string `xml:"alias"`
	} `xml:"mailname"`
}

type responsePacket struct {
	System *result `xml:"system"`
	Site   struct {
		Get struct {
			Results []siteGetResult `xml:"result"`
		} `xml:"get"`
	} `xml:"site"`
	Mail struct {
		Update struct {
			Add struct {
				Results []result `xml:"result"`
			} `xml:"add"`
			Remove struct {
				Results []result `xml:"result"`
			} `xml:"remove"`
		} `xml:"update"`
		GetInfo struct {
			Results []mailInfoResult `xml:"result"`
		} `xml:"get_info"`
	} `xml:"mail"`
}

// parseResponse decodes body and rejects packet-level system errors.
func parseResponse(op string, body []byte) (*responsePacket, error) {
	var resp responsePacket
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, notOK(op, fmt.Sprintf("malformed XML: %v", err), body)
	}
	if resp.System != nil {
		e := notOK(op, "system error", body)
		e.ErrCode, e.ErrText = first(resp.System.ErrCode), first(resp.System.ErrText)
		return nil, e
	}
	return &resp, nil
}

// StatusOK reports whether statuses, every status element found at one
// result path, consists of exactly one element with the text "ok".
func StatusOK(statuses []string) bool {
	return len(statuses) == 1 && statuses[0] == "ok"
}

// verifyResults applies the status check to all result nodes at one path.
func verifyResults(op string, results []result, body []byte) error {
	var statuses []string
	for _, r := range results {
		statuses = append(statuses, r.Status...)
	}
	if StatusOK(statuses) {
		return nil
	}
	e := notOK(op, statusReason(statuses), body)
	for _, r := range results {
		if len(r.ErrCode) > 0 || len(r.ErrText) > 0 {
			e.ErrCode, e.ErrText = first(r.ErrCode), first(r.ErrText)
			break
		}
	}
	return e
}

func statusReason(statuses []string) string {
	switch len(statuses) {
	case 0:
		return "missing status"
	case 1:
		return fmt.Sprintf("status %q", statuses[0])
	default:
		return fmt.Sprintf("%d status elements", len(statuses))
	}
}

// single returns the only value of a singular field.
func single(field string, values []string) (string, error) {
	if len(values) != 1 {
		return "", fmt.Errorf("expected exactly one %s, found %d", field, len(values))
	}
	return values[0], nil
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
