// Package dns looks up the TXT records used for domain ownership
// proofs.
package dns

import (
	"context"
	"errors"
	"net"
)

// Resolver answers TXT queries. net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Verifier checks whether a hostname publishes an expected TXT value.
type Verifier struct {
	resolver Resolver
}

func NewVerifier(resolver Resolver) *Verifier {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Verifier{resolver: resolver}
}

// HasTXT reports whether any TXT record at name equals value. NXDOMAIN
// and an absent record are the same outcome for a proof check.
func (v *Verifier) HasTXT(ctx context.Context, name, value string) (bool, error) {
	records, err := v.resolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return false, nil
		}
		return false, err
	}
	for _, record := range records {
		if record == value {
			return true, nil
		}
	}
	return false, nil
}
