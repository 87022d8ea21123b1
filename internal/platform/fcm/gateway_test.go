package fcm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-order-notification-service/internal/composer"
	"github.com/tinywideclouds/go-order-notification-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-order-notification-service/pkg/dispatch"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockClient) SendEach(ctx context.Context, msgs []*messaging.Message) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func msgFor(id string) dispatch.Message {
	return dispatch.Message{
		RecipientID: id,
		Address:     "tok-" + id,
		Payload:     dispatch.NotificationPayload{Title: "Hi", Body: "there"},
	}
}

func TestSendBatch(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()

	t.Run("outcomes follow input order", func(t *testing.T) {
		client := new(MockClient)
		gw := fcm.NewGateway(client, logger)
		client.On("SendEach", ctx, mock.MatchedBy(func(msgs []*messaging.Message) bool {
			return len(msgs) == 3 && msgs[0].Token == "tok-a" && msgs[2].Token == "tok-c"
		})).Return(&messaging.BatchResponse{
			SuccessCount: 2,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true, MessageID: "m-a"},
				{Success: false, Error: errors.New("opaque")},
				{Success: true, MessageID: "m-c"},
			},
		}, nil)

		out, err := gw.SendBatch(ctx, []dispatch.Message{msgFor("a"), msgFor("b"), msgFor("c")})

		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.True(t, out[0].Success)
		assert.Equal(t, "m-a", out[0].MessageID)
		assert.False(t, out[1].Success)
		assert.Equal(t, dispatch.KindUnknown, out[1].Kind)
		assert.True(t, out[2].Success)
		client.AssertExpectations(t)
	})

	t.Run("transport failure rejects whole batch", func(t *testing.T) {
		client := new(MockClient)
		gw := fcm.NewGateway(client, logger)
		client.On("SendEach", ctx, mock.Anything).Return(nil, errors.New("network down"))

		_, err := gw.SendBatch(ctx, []dispatch.Message{msgFor("a"), msgFor("b")})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
	})

	t.Run("short response marks missing outcomes unknown", func(t *testing.T) {
		client := new(MockClient)
		gw := fcm.NewGateway(client, logger)
		client.On("SendEach", ctx, mock.Anything).Return(&messaging.BatchResponse{
			SuccessCount: 1,
			Responses:    []*messaging.SendResponse{{Success: true}},
		}, nil)

		out, err := gw.SendBatch(ctx, []dispatch.Message{msgFor("a"), msgFor("b")})

		require.NoError(t, err)
		assert.Equal(t, dispatch.KindUnknown, out[1].Kind)
	})

	t.Run("oversized batch is refused", func(t *testing.T) {
		client := new(MockClient)
		gw := fcm.NewGateway(client, logger)

		_, err := gw.SendBatch(ctx, make([]dispatch.Message, 501))

		require.Error(t, err)
		client.AssertNotCalled(t, "SendEach", mock.Anything, mock.Anything)
	})
}

func TestSendOne(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	gw := fcm.NewGateway(client, newTestLogger())

	client.On("Send", ctx, mock.MatchedBy(func(m *messaging.Message) bool { return m.Token == "tok-a" })).Return("m-1", nil).Once()
	client.On("Send", ctx, mock.MatchedBy(func(m *messaging.Message) bool { return m.Token == "tok-b" })).Return("", errors.New("boom")).Once()

	require.NoError(t, gw.SendOne(ctx, msgFor("a")))

	err := gw.SendOne(ctx, msgFor("b"))
	require.Error(t, err)
	assert.Equal(t, dispatch.KindUnknown, dispatch.KindOf(err))
	client.AssertExpectations(t)
}

func TestClassify_NonSDKErrors(t *testing.T) {
	assert.Equal(t, dispatch.ErrorKind(""), fcm.Classify(nil))
	assert.Equal(t, dispatch.KindUnknown, fcm.Classify(errors.New("plain")))
}

// fcmErrors maps a token to the FCM v1 error body returned for it.
var fcmErrors = map[string]struct {
	status int
	body   string
}{
	"tok-unregistered": {http.StatusNotFound, `{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`},
	"tok-bad-payload":  {http.StatusBadRequest, `{"error":{"code":400,"message":"Invalid image url","status":"INVALID_ARGUMENT","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"INVALID_ARGUMENT"}]}}`},
	"tok-quota":        {http.StatusTooManyRequests, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"QUOTA_EXCEEDED"}]}}`},
}

// redirectTransport sends every request to the test server.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newFakeFCMClient(t *testing.T) *messaging.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message struct {
				Token string `json:"token"`
			} `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if e, ok := fcmErrors[req.Message.Token]; ok {
			w.WriteHeader(e.status)
			_, _ = io.WriteString(w, e.body)
			return
		}
		_, _ = io.WriteString(w, `{"name":"projects/test-project/messages/1"}`)
	}))
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: "test-project"},
		option.WithHTTPClient(&http.Client{Transport: redirectTransport{target: target}}))
	require.NoError(t, err)
	client, err := app.Messaging(ctx)
	require.NoError(t, err)
	return client
}

func TestClassify_FirebaseErrors(t *testing.T) {
	ctx := context.Background()
	gw := fcm.NewGateway(newFakeFCMClient(t), newTestLogger())

	send := func(token string) error {
		return gw.SendOne(ctx, dispatch.Message{
			RecipientID: "user-1",
			Address:     token,
			Payload:     dispatch.NotificationPayload{Title: "Offer", Body: "b"},
		})
	}

	require.NoError(t, send("tok-ok"))
	assert.Equal(t, dispatch.KindInvalidAddress, dispatch.KindOf(send("tok-unregistered")))
	assert.Equal(t, dispatch.KindInvalidPayload, dispatch.KindOf(send("tok-bad-payload")),
		"a rejected payload must not mark the token dead")
	assert.Equal(t, dispatch.KindThrottled, dispatch.KindOf(send("tok-quota")))
}

func TestSendBatch_BadPayloadKeepsAddresses(t *testing.T) {
	ctx := context.Background()
	gw := fcm.NewGateway(newFakeFCMClient(t), newTestLogger())
	msgs := []dispatch.Message{
		{RecipientID: "a", Address: "tok-bad-payload", Payload: dispatch.NotificationPayload{Title: "t"}},
		{RecipientID: "b", Address: "tok-ok", Payload: dispatch.NotificationPayload{Title: "t"}},
	}

	out, err := gw.SendBatch(ctx, msgs)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, dispatch.KindInvalidPayload, out[0].Kind)
	assert.True(t, out[1].Success)

	result := dispatch.BatchResult{Errors: []dispatch.TargetError{{RecipientID: "a", Address: "tok-bad-payload", Kind: out[0].Kind}}}
	assert.Empty(t, result.InvalidAddresses())
}

func TestBuildMessage_OrderHints(t *testing.T) {
	payload := composer.OrderStatus("confirmed", "ORDER12345", 450)

	msg := fcm.BuildMessage(dispatch.Message{RecipientID: "u", Address: "tok", Payload: payload})

	assert.Equal(t, "tok", msg.Token)
	assert.Equal(t, "Order Confirmed", msg.Notification.Title)
	assert.Equal(t, "ORDER12345", msg.Data["orderId"])
	require.NotNil(t, msg.Android)
	assert.Equal(t, "high", msg.Android.Priority)
	assert.Equal(t, "order_updates", msg.Android.Notification.ChannelID)
	assert.True(t, msg.Android.Notification.DefaultSound)
	require.NotNil(t, msg.APNS)
	assert.Equal(t, "default", msg.APNS.Payload.Aps.Sound)
	require.NotNil(t, msg.APNS.Payload.Aps.Badge)
	assert.Equal(t, 1, *msg.APNS.Payload.Aps.Badge)
}

func TestBuildMessage_PromotionImage(t *testing.T) {
	payload := dispatch.NotificationPayload{
		Title:    "Offer",
		Body:     "Half price",
		ImageURL: "https://cdn/img.png",
		Hints:    &dispatch.PlatformHints{AndroidChannelID: "promotions", AndroidPriority: "normal"},
	}

	msg := fcm.BuildMessage(dispatch.Message{Address: "tok", Payload: payload})

	assert.Equal(t, "https://cdn/img.png", msg.Notification.ImageURL)
	assert.Equal(t, "https://cdn/img.png", msg.Android.Notification.ImageURL)
	require.NotNil(t, msg.APNS)
	assert.Equal(t, "https://cdn/img.png", msg.APNS.FCMOptions.ImageURL)
}

func TestBuildMessage_NoHints(t *testing.T) {
	msg := fcm.BuildMessage(dispatch.Message{Address: "tok", Payload: dispatch.NotificationPayload{Title: "t"}})
	assert.Nil(t, msg.Android)
	assert.Nil(t, msg.APNS)
}
