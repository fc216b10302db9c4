package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppSend(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "token", pass)
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)

		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"From": r.PostFormValue("From"),
			"To":   r.PostFormValue("To"),
			"Body": r.PostFormValue("Body"),
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewWhatsAppSender("AC123", "token", "+14155238886")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), Destination{Channel: ChannelWhatsApp, Address: "+27820000001"}, "hello")

	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+14155238886", gotForm["From"])
	assert.Equal(t, "whatsapp:+27820000001", gotForm["To"])
	assert.Equal(t, "hello", gotForm["Body"])
}

func TestWhatsAppSendClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": 21211, "message": "invalid to number"}`))
	}))
	defer srv.Close()

	s := NewWhatsAppSender("AC123", "token", "+14155238886")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), Destination{Channel: ChannelWhatsApp, Address: "bad"}, "hello")

	require.Error(t, err)
	assert.True(t, IsPermanent(err), "4xx rejections are permanent")
}

func TestWhatsAppSendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewWhatsAppSender("AC123", "token", "+14155238886")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), Destination{Channel: ChannelWhatsApp, Address: "+27820000001"}, "hello")

	require.Error(t, err)
	assert.False(t, IsPermanent(err), "5xx is worth a retry")
}
