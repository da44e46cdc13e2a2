package zincaddapter

import (
	"encoding/json"
	"net"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "Basic YWRtaW46emluY3NlYXJjaA=="

type fakeZinc struct {
	mux      sync.Mutex
	messages []string
	tokens   []string
}

func (f *fakeZinc) start(t *testing.T) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get(healthz, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Post("/api/:index/_doc", func(c *fiber.Ctx) error {
		var msg message
		if err := json.Unmarshal(c.Body(), &msg); err != nil {
			return err
		}
		f.mux.Lock()
		f.messages = append(f.messages, c.Params("index")+":"+msg.AdditionalProp1.Message)
		f.tokens = append(f.tokens, c.Get(fiber.HeaderAuthorization))
		f.mux.Unlock()
		return c.JSON(fiber.Map{"id": "1"})
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "http://" + ln.Addr().String()
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrEmptyAddressProvided)
	_, err = New(Config{Address: "http://localhost:4080"})
	assert.ErrorIs(t, err, ErrEmptyIndexProvided)
}

func TestNewServerNotResponding(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	address := "http://" + ln.Addr().String()
	require.Nil(t, ln.Close())

	_, err = New(Config{Address: address, Index: "rollup"})
	assert.ErrorIs(t, err, ErrZincServerNotResponding)
}

func TestWrite(t *testing.T) {
	f := &fakeZinc{}
	z, err := New(Config{Address: f.start(t), Index: "rollup", Token: token})
	require.Nil(t, err)

	n, err := z.Write([]byte(`{"level":"info","msg":"block forged"}`))
	assert.Nil(t, err)
	assert.Equal(t, 37, n)

	f.mux.Lock()
	defer f.mux.Unlock()
	assert.Equal(t, []string{`rollup:{"level":"info","msg":"block forged"}`}, f.messages)
	assert.Equal(t, []string{token}, f.tokens)
}
