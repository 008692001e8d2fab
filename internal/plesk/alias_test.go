package plesk

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/mailaliases/internal/plesk/plesktest"
)

func siteResponse(id, name string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<packet version="1.6.9.1">
  <site>
    <get>
      <result>
        <status>ok</status>
        <filter-id>%[2]s</filter-id>
        <id>%[1]s</id>
        <data>
          <gen_info>
            <name>%[2]s</name>
          </gen_info>
        </data>
      </result>
    </get>
  </site>
</packet>`, id, name))
}

func newTestManager(t *testing.T, sender *mockSender) *AliasManager {
	t.Helper()
	sender.On("Send", mock.Anything, packetWith("<site><get>")).Return(siteResponse("42", "example.com"), nil).Once()
	m, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.NoError(t, err)
	return m
}

// ---------- NewAliasManager ----------

func TestNewAliasManager_ResolvesSiteID(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	assert.Equal(t, 42, m.SiteID())
	assert.Equal(t, "example.com", m.Site())
	sender.AssertExpectations(t)
}

func TestNewAliasManager_RequestsGenInfoByName(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, packetWith("<filter><name>example.com</name></filter><dataset><gen_info></gen_info></dataset>")).
		Return(siteResponse("42", "example.com"), nil).Once()

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestNewAliasManager_NameMismatch(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(siteResponse("42", "other.com"), nil)

	m, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrSiteResolution)
	assert.ErrorIs(t, err, ErrResponseNotOK)
	assert.Contains(t, err.Error(), "site name mismatch")
}

func TestNewAliasManager_NameDiffersOnlyInCase(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(siteResponse("42", "Example.com"), nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	assert.ErrorIs(t, err, ErrSiteResolution)
}

func TestNewAliasManager_StatusError(t *testing.T) {
	body := []byte(`<packet><site><get><result>
		<status>error</status><errcode>1013</errcode><errtext>Site does not exist</errtext>
		<filter-id>example.com</filter-id>
	</result></get></site></packet>`)
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(body, nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteResolution)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "1013", respErr.ErrCode)
	assert.Equal(t, body, respErr.Body)
}

func TestNewAliasManager_NoResult(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return([]byte(`<packet><site><get></get></site></packet>`), nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteResolution)
	assert.Contains(t, err.Error(), "found 0")
}

func TestNewAliasManager_MultipleResults(t *testing.T) {
	body := []byte(`<packet><site><get>
		<result><status>ok</status><id>1</id><data><gen_info><name>example.com</name></gen_info></data></result>
		<result><status>ok</status><id>2</id><data><gen_info><name>example.com</name></gen_info></data></result>
	</get></site></packet>`)
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(body, nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteResolution)
	assert.Contains(t, err.Error(), "found 2")
}

func TestNewAliasManager_MissingID(t *testing.T) {
	body := []byte(`<packet><site><get><result><status>ok</status>
		<data><gen_info><name>example.com</name></gen_info></data>
	</result></get></site></packet>`)
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(body, nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteResolution)
	assert.Contains(t, err.Error(), "expected exactly one id")
}

func TestNewAliasManager_DuplicateID(t *testing.T) {
	body := []byte(`<packet><site><get><result><status>ok</status><id>1</id><id>2</id>
		<data><gen_info><name>example.com</name></gen_info></data>
	</result></get></site></packet>`)
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(body, nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	assert.ErrorIs(t, err, ErrSiteResolution)
}

func TestNewAliasManager_MissingName(t *testing.T) {
	body := []byte(`<packet><site><get><result><status>ok</status><id>42</id></result></get></site></packet>`)
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(body, nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected exactly one gen_info/name")
}

func TestNewAliasManager_NonNumericID(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(siteResponse("forty-two", "example.com"), nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteResolution)
	assert.Contains(t, err.Error(), `invalid site id "forty-two"`)
}

func TestNewAliasManager_MalformedResponse(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return([]byte("<html>oops"), nil)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteResolution)
}

func TestNewAliasManager_TransportError(t *testing.T) {
	netErr := errors.New("connection reset by peer")
	sender := &mockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil, netErr)

	_, err := NewAliasManager(context.Background(), sender, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, netErr)
	assert.NotErrorIs(t, err, ErrResponseNotOK)
}

// ---------- AddAlias ----------

func TestAliasManager_AddAlias_Success(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<update><add><filter><site-id>42</site-id><mailname><name>joe</name><alias>vacation</alias></mailname>")).
		Return([]byte(`<packet><mail><update><add><result><status>ok</status></result></add></update></mail></packet>`), nil).Once()

	require.NoError(t, m.AddAlias(context.Background(), "joe", "vacation"))
	sender.AssertExpectations(t)
}

func TestAliasManager_AddAlias_InvalidTextNotSent(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	err := m.AddAlias(context.Background(), "joe", "va\xffc\x01")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidText)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestAliasManager_AddAlias_NotOK(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<add>")).
		Return([]byte(`<packet><mail><update><add><result><status>error</status><errcode>1013</errcode><errtext>Mail name does not exist</errtext></result></add></update></mail></packet>`), nil)

	err := m.AddAlias(context.Background(), "nobody", "vacation")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseNotOK)
	assert.NotErrorIs(t, err, ErrSiteResolution)
	assert.Contains(t, err.Error(), "Mail name does not exist")
}

func TestAliasManager_AddAlias_StatusAtRemovePath(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<add>")).
		Return([]byte(`<packet><mail><update><remove><result><status>ok</status></result></remove></update></mail></packet>`), nil)

	err := m.AddAlias(context.Background(), "joe", "vacation")
	assert.ErrorIs(t, err, ErrResponseNotOK)
}

func TestAliasManager_AddAlias_TransportError(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<add>")).Return(nil, context.DeadlineExceeded)

	err := m.AddAlias(context.Background(), "joe", "vacation")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "mail/update/add")
}

// ---------- RemoveAlias ----------

func TestAliasManager_RemoveAlias_Success(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<update><remove><filter><site-id>42</site-id><mailname><name>joe</name><alias>vacation</alias></mailname>")).
		Return([]byte(`<packet><mail><update><remove><result><status>ok</status></result></remove></update></mail></packet>`), nil).Once()

	require.NoError(t, m.RemoveAlias(context.Background(), "joe", "vacation"))
	sender.AssertExpectations(t)
}

func TestAliasManager_RemoveAlias_MissingStatus(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<remove>")).
		Return([]byte(`<packet><mail><update><remove><result></result></remove></update></mail></packet>`), nil)

	err := m.RemoveAlias(context.Background(), "joe", "vacation")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseNotOK)
	assert.Contains(t, err.Error(), "missing status")
}

// ---------- ListAliases ----------

func TestAliasManager_ListAliases_DocumentOrder(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<get_info><filter><site-id>42</site-id><name>joe</name></filter><aliases></aliases>")).
		Return([]byte(`<packet><mail><get_info><result>
			<status>ok</status>
			<mailname><id>3</id><name>joe</name><alias>jsmith</alias><alias>j.doe</alias></mailname>
		</result></get_info></mail></packet>`), nil).Once()

	aliases, err := m.ListAliases(context.Background(), "joe")
	require.NoError(t, err)
	assert.Equal(t, []string{"jsmith", "j.doe"}, aliases)
	sender.AssertExpectations(t)
}

func TestAliasManager_ListAliases_Empty(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<get_info>")).
		Return([]byte(`<packet><mail><get_info><result><status>ok</status><mailname><id>3</id><name>joe</name></mailname></result></get_info></mail></packet>`), nil)

	aliases, err := m.ListAliases(context.Background(), "joe")
	require.NoError(t, err)
	assert.NotNil(t, aliases)
	assert.Empty(t, aliases)
}

func TestAliasManager_ListAliases_KeepsDuplicatesAcrossMailnames(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<get_info>")).
		Return([]byte(`<packet><mail><get_info><result><status>ok</status>
			<mailname><alias>a</alias><alias>b</alias></mailname>
			<mailname><alias>a</alias></mailname>
		</result></get_info></mail></packet>`), nil)

	aliases, err := m.ListAliases(context.Background(), "joe")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, aliases)
}

func TestAliasManager_ListAliases_StatusError(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<get_info>")).
		Return([]byte(`<packet><mail><get_info><result><status>error</status><errcode>1013</errcode><errtext>Mail name does not exist</errtext></result></get_info></mail></packet>`), nil)

	aliases, err := m.ListAliases(context.Background(), "nobody")
	require.Error(t, err)
	assert.Nil(t, aliases)
	assert.ErrorIs(t, err, ErrResponseNotOK)
}

func TestAliasManager_ListAliases_SystemError(t *testing.T) {
	sender := &mockSender{}
	m := newTestManager(t, sender)

	sender.On("Send", mock.Anything, packetWith("<get_info>")).
		Return([]byte(`<packet><system><status>error</status><errcode>1014</errcode><errtext>Parser error</errtext></system></packet>`), nil)

	_, err := m.ListAliases(context.Background(), "joe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Parser error")
}

// ---------- against the fake agent ----------

func newFakeAgentClient(t *testing.T, srv *plesktest.Server, auth Auth) *Client {
	t.Helper()
	client, err := NewClient(Config{
		Host: srv.Host(),
		Port: srv.Port(),
		Auth: auth,
		TLS:  &tls.Config{RootCAs: srv.CertPool()},
	}, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestAliasManager_RoundTrip(t *testing.T) {
	srv := plesktest.NewServer(t)
	srv.AddSite("example.com", 42)
	srv.AddAccount(42, "joe", "jsmith")

	client := newFakeAgentClient(t, srv, LoginPassword{Login: srv.Login, Password: srv.Password})
	ctx := context.Background()

	m, err := NewAliasManager(ctx, client, "example.com", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 42, m.SiteID())

	require.NoError(t, m.AddAlias(ctx, "joe", "vacation"))
	aliases, err := m.ListAliases(ctx, "joe")
	require.NoError(t, err)
	assert.Contains(t, aliases, "vacation")
	assert.Contains(t, aliases, "jsmith")

	require.NoError(t, m.RemoveAlias(ctx, "joe", "vacation"))
	aliases, err = m.ListAliases(ctx, "joe")
	require.NoError(t, err)
	assert.NotContains(t, aliases, "vacation")
	assert.Equal(t, []string{"jsmith"}, srv.Aliases(42, "joe"))

	assert.Equal(t, 5, srv.Requests())
}

func TestAliasManager_RoundTrip_SecretKey(t *testing.T) {
	srv := plesktest.NewServer(t)
	srv.SecretKey = "0123-abcd"
	srv.AddSite("example.com", 7)
	srv.AddAccount(7, "joe")

	client := newFakeAgentClient(t, srv, SecretKey{Key: "0123-abcd"})
	m, err := NewAliasManager(context.Background(), client, "example.com", zerolog.Nop())
	require.NoError(t, err)

	aliases, err := m.ListAliases(context.Background(), "joe")
	require.NoError(t, err)
	assert.Empty(t, aliases)
}

func TestAliasManager_RoundTrip_MetacharactersInAlias(t *testing.T) {
	srv := plesktest.NewServer(t)
	srv.AddSite("example.com", 42)
	srv.AddAccount(42, "joe")

	client := newFakeAgentClient(t, srv, LoginPassword{Login: srv.Login, Password: srv.Password})
	m, err := NewAliasManager(context.Background(), client, "example.com", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, m.AddAlias(context.Background(), "joe", "a&b<c>"))
	assert.Equal(t, []string{"a&b<c>"}, srv.Aliases(42, "joe"))

	aliases, err := m.ListAliases(context.Background(), "joe")
	require.NoError(t, err)
	assert.Equal(t, []string{"a&b<c>"}, aliases)
}

func TestAliasManager_BadCredentials(t *testing.T) {
	srv := plesktest.NewServer(t)
	srv.AddSite("example.com", 42)

	client := newFakeAgentClient(t, srv, LoginPassword{Login: "admin", Password: "wrong"})
	_, err := NewAliasManager(context.Background(), client, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteResolution)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "1001", respErr.ErrCode)
}

func TestAliasManager_UnknownSite(t *testing.T) {
	srv := plesktest.NewServer(t)

	client := newFakeAgentClient(t, srv, LoginPassword{Login: srv.Login, Password: srv.Password})
	_, err := NewAliasManager(context.Background(), client, "missing.example", zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSiteResolution)
	assert.Contains(t, err.Error(), "Site does not exist")
}

func TestAliasManager_NameMismatchOverTransport(t *testing.T) {
	srv := plesktest.NewServer(t)
	srv.Respond(func(body []byte) string {
		return string(siteResponse("42", "evil.example"))
	})

	client := newFakeAgentClient(t, srv, LoginPassword{Login: srv.Login, Password: srv.Password})
	m, err := NewAliasManager(context.Background(), client, "example.com", zerolog.Nop())
	require.Error(t, err)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrSiteResolution)
	assert.Equal(t, 1, srv.Requests())
}
