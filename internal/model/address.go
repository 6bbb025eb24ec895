package model

import "net/mail"

// ParseAddressList parses an RFC 5322 address header value into EmailAddress
// values, keeping header order. Unparseable input yields nil.
func ParseAddressList(value string) []EmailAddress {
	if value == "" {
		return nil
	}
	parsed, err := mail.ParseAddressList(value)
	if err != nil {
		return nil
	}
	out := make([]EmailAddress, 0, len(parsed))
	for _, addr := range parsed {
		out = append(out, EmailAddress{Name: addr.Name, Address: addr.Address})
	}
	return out
}

// ParseAddress parses a single address, falling back to the unknown sentinel.
func ParseAddress(value string) EmailAddress {
	list := ParseAddressList(value)
	if len(list) == 0 {
		return EmailAddress{Address: UnknownAddress}
	}
	return list[0]
}
