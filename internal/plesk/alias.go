package plesk

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// Sender delivers one packet to the agent and returns the raw response.
type Sender interface {
	Send(ctx context.Context, packet []byte) ([]byte, error)
}

// AliasManager manages the mail aliases of accounts on one site. The site
// id is resolved once, when the manager is created.
type AliasManager struct {
	sender Sender
	site   string
	siteID int
	logger zerolog.Logger
}

// NewAliasManager resolves site to its id and returns a manager bound to it.
func NewAliasManager(ctx context.Context, sender Sender, site string, logger zerolog.Logger) (*AliasManager, error) {
	m := &AliasManager{
		sender: sender,
		site:   site,
		logger: logger.With().Str("component", "alias_manager").Str("site", site).Logger(),
	}

	id, err := m.resolveSite(ctx)
	if err != nil {
		return nil, err
	}
	m.siteID = id
	m.logger.Debug().Int("site_id", id).Msg("site resolved")
	return m, nil
}

// Site returns the site name the manager is bound to.
func (m *AliasManager) Site() string { return m.site }

// SiteID returns the resolved id of the site.
func (m *AliasManager) SiteID() int { return m.siteID }

func (m *AliasManager) resolveSite(ctx context.Context) (int, error) {
	const op = "site/get"

	packet, err := SiteGetPacket(m.site)
	if err != nil {
		return 0, err
	}
	body, err := m.sender.Send(ctx, packet)
	if err != nil {
		return 0, fmt.Errorf("resolve site %s: %w", m.site, err)
	}
	resp, err := parseResponse(op, body)
	if err != nil {
		return 0, asSiteError(err)
	}

	results := resp.Site.Get.Results
	if len(results) != 1 {
		return 0, siteNotResolved(op, fmt.Sprintf("expected exactly one result, found %d", len(results)), body)
	}
	r := results[0]

	if err := verifyResults(op, []result{r.result}, body); err != nil {
		return 0, asSiteError(err)
	}
	name, err := single("gen_info/name", r.Name)
	if err != nil {
		return 0, siteNotResolved(op, err.Error(), body)
	}
	if name != m.site {
		return 0, siteNotResolved(op, fmt.Sprintf("site name mismatch: requested %q, got %q", m.site, name), body)
	}
	rawID, err := single("id", r.ID)
	if err != nil {
		return 0, siteNotResolved(op, err.Error(), body)
	}
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return 0, siteNotResolved(op, fmt.Sprintf("invalid site id %q", rawID), body)
	}
	return id, nil
}

// AddAlias adds alias to account.
func (m *AliasManager) AddAlias(ctx context.Context, account, alias string) error {
	const op = "mail/update/add"

	packet, err := AddAliasPacket(m.siteID, account, alias)
	if err != nil {
		return err
	}
	resp, body, err := m.roundTrip(ctx, op, packet)
	if err != nil {
		return err
	}
	if err := verifyResults(op, resp.Mail.Update.Add.Results, body); err != nil {
		return err
	}
	m.logger.Info().Str("account", account).Str("alias", alias).Msg("alias added")
	return nil
}

// RemoveAlias removes alias from account.
func (m *AliasManager) RemoveAlias(ctx context.Context, account, alias string) error {
	const op = "mail/update/remove"

	packet, err := RemoveAliasPacket(m.siteID, account, alias)
	if err != nil {
		return err
	}
	resp, body, err := m.roundTrip(ctx, op, packet)
	if err != nil {
		return err
	}
	if err := verifyResults(op, resp.Mail.Update.Remove.Results, body); err != nil {
		return err
	}
	m.logger.Info().Str("account", account).Str("alias", alias).Msg("alias removed")
	return nil
}

// ListAliases returns the aliases of account in the order the server
// reports them. An account without aliases yields an empty slice.
func (m *AliasManager) ListAliases(ctx context.Context, account string) ([]string, error) {
	const op = "mail/get_info"

	packet, err := ListAliasesPacket(m.siteID, account)
	if err != nil {
		return nil, err
	}
	resp, body, err := m.roundTrip(ctx, op, packet)
	if err != nil {
		return nil, err
	}

	results := resp.Mail.GetInfo.Results
	base := make([]result, len(results))
	for i, r := range results {
		base[i] = r.result
	}
	if err := verifyResults(op, base, body); err != nil {
		return nil, err
	}

	aliases := []string{}
	for _, r := range results {
		for _, mn := range r.Mailname {
			aliases = append(aliases, mn.Alias...)
		}
	}
	return aliases, nil
}

func (m *AliasManager) roundTrip(ctx context.Context, op string, packet []byte) (*responsePacket, []byte, error) {
	body, err := m.sender.Send(ctx, packet)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := parseResponse(op, body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// asSiteError reclassifies a protocol error raised during site resolution.
func asSiteError(err error) error {
	if e, ok := err.(*ResponseError); ok {
		e.kind = ErrSiteResolution
	}
	return err
}
