package xmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signalBody = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>io</title><base href="http://127.0.0.1:80/"/></head>
<body>
<div class="state">
<a href="rw/iosystem/signals/DO_1" rel="self"></a>
<ul>
<li class="ios-signal-li" title="DO_1">
<a href="rw/iosystem/signals/DO_1" rel="self"></a>
<span class="name">DO_1</span>
<span class="type">DO</span>
<span class="lvalue"> 1 </span>
</li>
</ul>
</div>
</body>
</html>`

func TestClassText(t *testing.T) {
	a := assert.New(t)
	doc, err := Parse(signalBody)
	require.NoError(t, err)

	for _, tc := range []struct {
		class string
		text  string
		ok    bool
	}{
		{class: "lvalue", text: "1", ok: true},
		{class: "name", text: "DO_1", ok: true},
		{class: "type", text: "DO", ok: true},
		{class: "missing"},
		{class: "bad']"},
	} {
		text, ok := ClassText(doc, tc.class)
		a.Equal(tc.ok, ok, tc.class)
		a.Equal(tc.text, text, tc.class)
	}

	nodes, err := FindClass(doc, "ios-signal-li")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	a.Equal("DO_1", nodes[0].SelectAttr("title"))

	_, err = FindClass(doc, `x"y`)
	a.Error(err)
}
