package host

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

var (
	ErrInitDataEmpty    = errors.New("host: init data is empty")
	ErrInitDataUnsigned = errors.New("host: init data has no hash")
	ErrInitDataSign     = errors.New("host: init data signature mismatch")
	ErrInitDataExpired  = errors.New("host: init data expired")
)

// ParseInitData decodes the query-string init data without checking its
// signature.
func ParseInitData(raw string) (InitDataUnsafe, error) {
	if strings.TrimSpace(raw) == "" {
		return InitDataUnsafe{}, ErrInitDataEmpty
	}
	data, err := initdata.Parse(raw)
	if err != nil {
		return InitDataUnsafe{}, fmt.Errorf("host: parse init data: %w", err)
	}

	out := InitDataUnsafe{
		QueryID:    data.QueryID,
		AuthDate:   int64(data.AuthDateRaw),
		StartParam: data.StartParam,
		Hash:       data.Hash,
	}
	if data.User.ID != 0 {
		out.User = &User{
			ID:           data.User.ID,
			Username:     data.User.Username,
			FirstName:    data.User.FirstName,
			LastName:     data.User.LastName,
			LanguageCode: data.User.LanguageCode,
		}
	}
	return out, nil
}

// VerifyInitData checks the init data signature against the bot token and,
// when maxAge is positive, its age at now.
func VerifyInitData(raw, botToken string, maxAge time.Duration, now time.Time) (InitDataUnsafe, error) {
	data, err := ParseInitData(raw)
	if err != nil {
		return InitDataUnsafe{}, err
	}

	// Age is checked against now below, not the library's wall clock.
	if err := initdata.Validate(raw, botToken, 0); err != nil {
		switch {
		case errors.Is(err, initdata.ErrSignMissing):
			return InitDataUnsafe{}, ErrInitDataUnsigned
		default:
			return InitDataUnsafe{}, fmt.Errorf("%w: %v", ErrInitDataSign, err)
		}
	}

	if maxAge > 0 {
		issued := time.Unix(data.AuthDate, 0)
		if data.AuthDate == 0 || now.Sub(issued) > maxAge {
			return InitDataUnsafe{}, ErrInitDataExpired
		}
	}
	return data, nil
}

// SignInitData sets the hash field of values the way the host does and returns
// the encoded init data. A missing auth_date is signed as zero.
func SignInitData(values url.Values, botToken string) string {
	payload := make(map[string]string, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		payload[k] = values.Get(k)
	}
	authDate, _ := strconv.ParseInt(values.Get("auth_date"), 10, 64)

	signed := url.Values{}
	for k, v := range payload {
		signed.Set(k, v)
	}
	signed.Set("auth_date", strconv.FormatInt(authDate, 10))
	signed.Set("hash", initdata.Sign(payload, botToken, time.Unix(authDate, 0)))
	return signed.Encode()
}
