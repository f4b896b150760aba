package cli

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/dmitrijs2005/idkeeper/internal/client/services"
	"github.com/dmitrijs2005/idkeeper/internal/netx"
	"github.com/dmitrijs2005/idkeeper/internal/verifier"
)

// AddEmail stages another address for the logged-in account.
func (a *App) AddEmail(ctx context.Context) error {
	address, err := getNonEmpty(a.reader, "Enter address to add", a.out)
	if err != nil {
		return err
	}
	if err := a.identity.AddEmail(ctx, address, cliSite, a.pollCallbacks("addition")); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Verification sent to %s. Run 'verify-email' with the token.\n", address)
	return nil
}

// VerifyEmail completes an address addition with its token.
func (a *App) VerifyEmail(ctx context.Context) error {
	token, err := getNonEmpty(a.reader, "Enter verification token", a.out)
	if err != nil {
		return err
	}
	address, err := a.identity.CompleteEmailAddition(ctx, token)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s added\n", address)
	return nil
}

// Emails lists the account's addresses.
func (a *App) Emails(ctx context.Context) error {
	emails, err := a.identity.SyncEmails(ctx)
	if err != nil {
		return err
	}

	addresses := make([]string, 0, len(emails))
	for address := range emails {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	for _, address := range addresses {
		state := "unverified"
		if emails[address].Verified {
			state = "verified"
		}
		fmt.Fprintf(a.out, "%-40s %s\n", address, state)
	}
	return nil
}

// Track looks an address up and remembers whether it is primary or
// secondary.
func (a *App) Track(ctx context.Context) error {
	address, err := getNonEmpty(a.reader, "Enter address", a.out)
	if err != nil {
		return err
	}
	kind, err := a.identity.Track(ctx, address)
	if err != nil {
		return err
	}

	switch k := kind.(type) {
	case services.Primary:
		fmt.Fprintf(a.out, "%s is primary (%s)\n", address, k.DiscoveryURL)
	case services.Secondary:
		if k.Verified {
			fmt.Fprintf(a.out, "%s is secondary and known\n", address)
		} else {
			fmt.Fprintf(a.out, "%s is secondary and unknown\n", address)
		}
	}
	return nil
}

// Certify replaces an address's key and certificate.
func (a *App) Certify(ctx context.Context) error {
	address, err := getNonEmpty(a.reader, "Enter address", a.out)
	if err != nil {
		return err
	}
	if err := a.identity.Certify(ctx, address); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s certified\n", address)
	return nil
}

// Assert prints an assertion bundle for an address and audience.
func (a *App) Assert(ctx context.Context) error {
	address, err := getNonEmpty(a.reader, "Enter address", a.out)
	if err != nil {
		return err
	}
	audience, err := getNonEmpty(a.reader, "Enter audience (scheme://host:port)", a.out)
	if err != nil {
		return err
	}

	bundle, err := a.identity.Assert(ctx, address, audience)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.lastAssertion = bundle
	a.mu.Unlock()

	fmt.Fprintln(a.out, bundle)
	return nil
}

// VerifyAssertion asks the verifier about an assertion. An empty answer
// reuses the last assertion produced by Assert.
func (a *App) VerifyAssertion(ctx context.Context) error {
	bundle, err := getSimpleText(a.reader, "Enter assertion (empty for the last one)", a.out)
	if err != nil {
		return err
	}
	if bundle == "" {
		a.mu.Lock()
		bundle = a.lastAssertion
		a.mu.Unlock()
	}
	if bundle == "" {
		return errEmptyInput
	}

	audience, err := getNonEmpty(a.reader, "Enter audience", a.out)
	if err != nil {
		return err
	}

	q := url.Values{"assertion": {bundle}, "audience": {audience}}
	u := strings.TrimRight(a.config.VerifierURL, "/") + "/verify?" + q.Encode()

	var res verifier.Result
	if err := netx.GetJSON(ctx, a.http, u, &res); err != nil {
		return err
	}

	if !res.OK() {
		fmt.Fprintf(a.out, "failure: %s\n", res.Reason)
		return nil
	}
	fmt.Fprintf(a.out, "okay: %s for %s, issued by %s\n", res.Email, res.Audience, res.Issuer)
	return nil
}

// Remove detaches an address from the account.
func (a *App) Remove(ctx context.Context) error {
	address, err := getNonEmpty(a.reader, "Enter address to remove", a.out)
	if err != nil {
		return err
	}
	if err := a.identity.RemoveEmail(ctx, address); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s removed\n", address)
	return nil
}
