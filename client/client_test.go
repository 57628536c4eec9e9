package client

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/andaru/rws/result"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	code   int
	header http.Header
	body   string
}

type call struct {
	method, uri, body string
}

// fakeComm answers Execute from a table of canned replies keyed by
// "METHOD URI". Unknown requests fail with a network error.
type fakeComm struct {
	replies   map[string]reply
	frames    []*result.Result
	calls     []call
	connects  []string
	shutdowns int
	open      bool
}

func newFake(replies map[string]reply) *fakeComm {
	return &fakeComm{replies: replies}
}

func (f *fakeComm) Execute(_ context.Context, method, uri, body string) *result.Result {
	f.calls = append(f.calls, call{method, uri, body})
	res := result.NewHTTP(method, uri, body)
	r, ok := f.replies[method+" "+uri]
	if !ok {
		res.Fail(result.StatusNetworkError, errors.New("connection refused"))
		return res
	}
	res.SetResponse(r.code, r.header, r.body)
	res.Status = result.StatusOK
	return res
}

func (f *fakeComm) WebSocketConnect(_ context.Context, uri, protocol string) *result.Result {
	f.connects = append(f.connects, uri+" "+protocol)
	res := result.NewHTTP(http.MethodGet, uri, "")
	res.SetResponse(http.StatusSwitchingProtocols, nil, "")
	res.Status = result.StatusOK
	f.open = true
	return res
}

func (f *fakeComm) WebSocketReceiveFrame(context.Context) *result.Result {
	if !f.open || len(f.frames) == 0 {
		return &result.Result{Status: result.StatusWebSocketNotAllocated, WebSocket: &result.WebSocketInfo{}}
	}
	res := f.frames[0]
	f.frames = f.frames[1:]
	if res.WebSocket.Opcode == result.OpClose {
		f.open = false
	}
	return res
}

func (f *fakeComm) WebSocketShutdown() *result.Result {
	res := result.NewWebSocket()
	if !f.open {
		res.Status = result.StatusWebSocketNotAllocated
		return res
	}
	f.open = false
	f.shutdowns++
	res.Status = result.StatusOK
	return res
}

func frame(op result.Opcode, payload string) *result.Result {
	res := result.NewWebSocket()
	res.SetFrame(true, op, []byte(payload))
	res.Status = result.StatusOK
	return res
}

func span(class, text string) string {
	return `<?xml version="1.0" encoding="utf-8"?><html xmlns="http://www.w3.org/1999/xhtml"><body><div class="state"><ul><li><span class="` +
		class + `">` + text + `</span></li></ul></div></body></html>`
}

func TestGetters(t *testing.T) {
	ctx := context.Background()
	c := New(newFake(map[string]reply{
		"GET /rw/iosystem/signals/DO_1":                     {code: 200, body: span("lvalue", "1")},
		"GET /rw/iosystem/signals/DO_2":                     {code: 200, body: span("name", "DO_2")},
		"GET /rw/iosystem/signals/DO_3":                     {code: 404, body: "not found"},
		"GET /rw/rapid/symbol/data/RAPID/T_ROB1/user/reg1":  {code: 200, body: span("value", "[1,2,3]")},
		"GET /rw/rapid/symbol/data/RAPID/T_ROB1/user/empty": {code: 200},
	}))

	for _, tc := range []struct {
		name    string
		get     func() (string, error)
		want    string
		wantErr string
	}{
		{name: "signal", get: func() (string, error) { return c.GetIOSignal(ctx, "DO_1") }, want: "1"},
		{name: "missing class", get: func() (string, error) { return c.GetIOSignal(ctx, "DO_2") }, wantErr: `no element of class "lvalue"`},
		{name: "not found", get: func() (string, error) { return c.GetIOSignal(ctx, "DO_3") }, wantErr: "404"},
		{name: "network", get: func() (string, error) { return c.GetIOSignal(ctx, "DO_4") }, wantErr: "NETWORK_ERROR"},
		{name: "symbol", get: func() (string, error) {
			return c.GetRAPIDSymbolData(ctx, "T_ROB1", RAPIDSymbol{Module: "user", Name: "reg1"})
		}, want: "[1,2,3]"},
		{name: "empty body", get: func() (string, error) {
			return c.GetRAPIDSymbolData(ctx, "T_ROB1", RAPIDSymbol{Module: "user", Name: "empty"})
		}, wantErr: "GET /rw/rapid/symbol/data/RAPID/T_ROB1/user/empty"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.get()
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResultError(t *testing.T) {
	c := New(newFake(nil))
	err := c.SetMotorsOn(context.Background())
	var re *ResultError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, result.StatusNetworkError, re.Result.Status)
	assert.Equal(t, "/rw/panel/ctrlstate?action=setctrlstate", re.Result.HTTP.Request.URI)
}

func TestActions(t *testing.T) {
	ctx := context.Background()
	fake := newFake(map[string]reply{
		"POST /rw/iosystem/signals/DO_1?action=set":                   {code: 204},
		"POST /rw/rapid/symbol/data/RAPID/T_ROB1/user/reg1?action=set": {code: 204},
		"POST /rw/rapid/execution?action=start":                       {code: 204},
		"POST /rw/rapid/execution?action=stop":                        {code: 204},
		"POST /rw/rapid/execution?action=resetpp":                     {code: 204},
		"POST /rw/panel/ctrlstate?action=setctrlstate":                {code: 204},
		"PUT /fileservice/$home/a.txt":                                {code: 201},
		"DELETE /fileservice/HOME/b.txt":                              {code: 204},
		"POST /users":                                                 {code: 201},
		"GET /logout":                                                 {code: 200},
	})
	c := New(fake)

	for _, tc := range []struct {
		do   func() error
		want call
	}{
		{do: func() error { return c.SetIOSignal(ctx, "DO_1", "1") },
			want: call{"POST", "/rw/iosystem/signals/DO_1?action=set", "lvalue=1"}},
		{do: func() error {
			return c.SetRAPIDSymbolData(ctx, "T_ROB1", RAPIDSymbol{Module: "user", Name: "reg1"}, "[1,2]")
		}, want: call{"POST", "/rw/rapid/symbol/data/RAPID/T_ROB1/user/reg1?action=set", "value=%5B1%2C2%5D"}},
		{do: func() error { return c.StartRAPIDExecution(ctx) },
			want: call{"POST", "/rw/rapid/execution?action=start", startExecutionBody}},
		{do: func() error { return c.StopRAPIDExecution(ctx) },
			want: call{"POST", "/rw/rapid/execution?action=stop", "stopmode=stop"}},
		{do: func() error { return c.ResetRAPIDProgramPointer(ctx) },
			want: call{"POST", "/rw/rapid/execution?action=resetpp", ""}},
		{do: func() error { return c.SetMotorsOn(ctx) },
			want: call{"POST", "/rw/panel/ctrlstate?action=setctrlstate", "ctrl-state=motoron"}},
		{do: func() error { return c.SetMotorsOff(ctx) },
			want: call{"POST", "/rw/panel/ctrlstate?action=setctrlstate", "ctrl-state=motoroff"}},
		{do: func() error { return c.UploadFile(ctx, FileResource{Filename: "a.txt"}, "hello") },
			want: call{"PUT", "/fileservice/$home/a.txt", "hello"}},
		{do: func() error { return c.DeleteFile(ctx, FileResource{Directory: "HOME", Filename: "b.txt"}) },
			want: call{"DELETE", "/fileservice/HOME/b.txt", ""}},
		{do: func() error { return c.RegisterLocalUser(ctx, "", "", "") },
			want: call{"POST", "/users", "application=ExternalApplication&location=ExternalLocation&ulocale=local&username=Default+User"}},
		{do: func() error { return c.RegisterRemoteUser(ctx, "op", "app", "lab") },
			want: call{"POST", "/users", "application=app&location=lab&ulocale=remote&username=op"}},
		{do: func() error { return c.Logout(ctx) },
			want: call{"GET", "/logout", ""}},
	} {
		t.Run(tc.want.method+" "+tc.want.uri, func(t *testing.T) {
			require.NoError(t, tc.do())
			assert.Equal(t, tc.want, fake.calls[len(fake.calls)-1])
		})
	}
}

func TestTriBool(t *testing.T) {
	a := assert.New(t)
	for _, tc := range []struct {
		v TriBool
		s string
		b bool
	}{
		{v: Unknown, s: "unknown"},
		{v: True, s: "true", b: true},
		{v: False, s: "false"},
		{v: TriBool(7), s: "unknown"},
	} {
		a.Equal(tc.s, tc.v.String())
		a.Equal(tc.b, tc.v.Bool())
	}
	a.Equal(True, NewTriBool(true))
	a.Equal(False, NewTriBool(false))

	var v TriBool
	a.NoError(v.UnmarshalText([]byte("false")))
	a.Equal(False, v)
	a.Error(v.UnmarshalText([]byte("maybe")))
}

func TestControllerState(t *testing.T) {
	ctx := context.Background()
	c := New(newFake(map[string]reply{
		"GET /rw/panel/opmode":    {code: 200, body: span("opmode", "AUTO")},
		"GET /rw/panel/ctrlstate": {code: 200, body: span("ctrlstate", "motoroff")},
		"GET /rw/rapid/execution": {code: 503, body: "busy"},
	}))
	a := assert.New(t)
	a.Equal(True, c.IsAutoMode(ctx))
	a.Equal(False, c.IsMotorOn(ctx))
	a.Equal(Unknown, c.IsRAPIDRunning(ctx))

	info := c.CollectRuntimeInfo(ctx)
	a.Equal(RuntimeInfo{AutoMode: True, MotorOn: False, RAPIDRunning: Unknown, Connected: true}, info)

	a.Equal(RuntimeInfo{}, New(newFake(nil)).CollectRuntimeInfo(ctx))
}

const tasksBody = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body><div class="state"><ul>
<li class="rap-task-li" title="T_ROB1"><span class="name">T_ROB1</span><span class="type">normal</span><span class="motiontask">TRUE</span></li>
<li class="rap-task-li" title="T_LOG"><span class="name">T_LOG</span><span class="type">normal</span><span class="motiontask">FALSE</span></li>
</ul></div></body></html>`

const systemBody = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><body><div class="state"><ul>
<li class="sys-system-li" title="system"><span class="major">6</span><span class="rwversion">6.08.0134</span><span class="rwversionname">6.08.01.00</span><span class="name">IRB_1200</span></li>
</ul></div></body></html>`

func TestStaticInfo(t *testing.T) {
	ctx := context.Background()
	c := New(newFake(map[string]reply{
		"GET /rw/rapid/tasks": {code: 200, body: tasksBody},
		"GET /rw/system":      {code: 200, body: systemBody},
	}))

	info, err := c.CollectStaticInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, StaticInfo{
		RAPIDTasks: []RAPIDTask{{Name: "T_ROB1", MotionTask: true}, {Name: "T_LOG"}},
		System:     SystemInfo{RobotWareVersion: "6.08.01.00", SystemName: "IRB_1200"},
	}, info)

	_, err = New(newFake(nil)).CollectStaticInfo(ctx)
	assert.Error(t, err)
}

func TestGetFile(t *testing.T) {
	c := New(newFake(map[string]reply{
		"GET /fileservice/$home/prog.mod": {code: 200, body: "MODULE prog\nENDMODULE"},
	}))
	content, err := c.GetFile(context.Background(), FileResource{Filename: "prog.mod"})
	require.NoError(t, err)
	assert.Equal(t, "MODULE prog\nENDMODULE", content)
}

func TestLogText(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	c := New(newFake(map[string]reply{
		"GET /rw/iosystem/signals/DO_1": {code: 200, body: span("lvalue", "1")},
	}), WithLogSize(2))

	c.GetIOSignal(ctx, "DO_1")
	c.GetIOSignal(ctx, "DO_2")
	c.GetIOSignal(ctx, "DO_3")

	text := c.LogText(false)
	a.Equal(2, strings.Count(text, "=========="))
	a.NotContains(text, "DO_1")
	a.Less(strings.Index(text, "DO_3"), strings.Index(text, "DO_2"))
	a.Contains(text, "NETWORK_ERROR")

	a.Empty(New(newFake(nil), WithLogSize(0)).LogText(true))
}

func TestSubscriptionBody(t *testing.T) {
	var r SubscriptionResources
	r.AddIOSignal("DO_1", PriorityMedium)
	r.AddRAPIDPersistantVariable("T_ROB1", RAPIDSymbol{Module: "user", Name: "count"}, PriorityHigh)
	assert.Equal(t,
		"resources=1&1=/rw/iosystem/signals/DO_1;state&1-p=1"+
			"&resources=2&2=/rw/rapid/symbol/data/RAPID/T_ROB1/user/count;value&2-p=2",
		r.body())
}

func TestSubscription(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	fake := newFake(map[string]reply{
		"POST /subscription": {code: 201, header: http.Header{
			"Location": {"http://127.0.0.1/poll/42"},
		}},
		"DELETE /subscription/42": {code: 200},
	})
	fake.frames = []*result.Result{
		frame(result.OpText, span("lvalue", "1")),
		frame(result.OpClose, ""),
	}
	c := New(fake)

	a.Error(c.StartSubscription(ctx, nil))

	var r SubscriptionResources
	r.AddIOSignal("DO_1", PriorityLow)
	require.NoError(t, c.StartSubscription(ctx, r))
	a.Equal([]string{"/poll/42 robapi2_subscription"}, fake.connects)
	a.Equal("42", c.SubscriptionID())

	doc, err := c.WaitForSubscriptionEvent(ctx)
	require.NoError(t, err)
	a.NotNil(doc)

	_, err = c.WaitForSubscriptionEvent(ctx)
	a.ErrorIs(err, ErrSubscriptionClosed)

	_, err = c.WaitForSubscriptionEvent(ctx)
	var re *ResultError
	require.True(t, errors.As(err, &re))
	a.Equal(result.StatusWebSocketNotAllocated, re.Result.Status)

	require.NoError(t, c.EndSubscription(ctx))
	a.Equal(call{"DELETE", "/subscription/42", ""}, fake.calls[len(fake.calls)-1])
	a.Empty(c.SubscriptionID())
	a.Error(c.EndSubscription(ctx))
}

func TestSubscriptionReplaced(t *testing.T) {
	a := assert.New(t)
	ctx := context.Background()
	fake := newFake(map[string]reply{
		"POST /subscription": {code: 201, header: http.Header{
			"Location": {"http://127.0.0.1/poll/42"},
		}},
		"DELETE /subscription/42": {code: 200},
	})
	c := New(fake)

	var r SubscriptionResources
	r.AddIOSignal("DO_1", PriorityLow)
	require.NoError(t, c.StartSubscription(ctx, r))
	require.NoError(t, c.StartSubscription(ctx, r))

	var methods []string
	for _, call := range fake.calls {
		methods = append(methods, call.method+" "+call.uri)
	}
	a.Equal([]string{"POST /subscription", "DELETE /subscription/42", "POST /subscription"}, methods)
	a.Equal(1, fake.shutdowns)
	a.Len(fake.connects, 2)
	a.Equal("42", c.SubscriptionID())
}

func TestSubscriptionNoLocation(t *testing.T) {
	c := New(newFake(map[string]reply{
		"POST /subscription": {code: 201},
	}))
	var r SubscriptionResources
	r.AddIOSignal("DO_1", PriorityLow)
	assert.ErrorContains(t, c.StartSubscription(context.Background(), r), "no poll id")

	c = New(newFake(map[string]reply{
		"POST /subscription": {code: 200},
	}))
	assert.ErrorContains(t, c.StartSubscription(context.Background(), r), "200")
}
