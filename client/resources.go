package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/andaru/rws/result"
	"github.com/andaru/rws/xmlutil"
	"github.com/antchfx/xmlquery"
	"github.com/pkg/errors"
)

// RWS resource paths
const (
	PathIOSignals      = "/rw/iosystem/signals/"
	PathRAPIDData      = "/rw/rapid/symbol/data/RAPID/"
	PathRAPIDTasks     = "/rw/rapid/tasks"
	PathRAPIDExecution = "/rw/rapid/execution"
	PathPanelCtrlState = "/rw/panel/ctrlstate"
	PathPanelOpMode    = "/rw/panel/opmode"
	PathSystem         = "/rw/system"
	PathFileService    = "/fileservice/"
	PathSubscription   = "/subscription"
	PathPoll           = "/poll/"
	PathUsers          = "/users"
	PathLogout         = "/logout"
)

// Actions appended to resource paths
const (
	actionSet          = "?action=set"
	actionStart        = "?action=start"
	actionStop         = "?action=stop"
	actionResetPP      = "?action=resetpp"
	actionSetCtrlState = "?action=setctrlstate"
)

const startExecutionBody = "regain=continue&execmode=continue&cycle=forever&condition=none&stopatbp=disabled&alltaskbytsp=false"

// Controller state values
const (
	OpModeAuto        = "AUTO"
	CtrlStateMotorOn  = "motoron"
	CtrlStateMotorOff = "motoroff"
	CtrlExecRunning   = "running"
)

// Defaults for file and user resources
const (
	DefaultDirectory   = "$home"
	DefaultUsername    = "Default User"
	DefaultApplication = "ExternalApplication"
	DefaultLocation    = "ExternalLocation"
)

// RAPIDSymbol names a RAPID data symbol within a task
type RAPIDSymbol struct {
	Module string
	Name   string
}

func (s RAPIDSymbol) path(task string) string {
	return PathRAPIDData + task + "/" + s.Module + "/" + s.Name
}

// RAPIDTask describes a RAPID task defined in the controller
type RAPIDTask struct {
	Name       string `json:"name"`
	MotionTask bool   `json:"motion_task"`
}

// SystemInfo describes the controller system
type SystemInfo struct {
	RobotWareVersion string `json:"robotware_version"`
	SystemName       string `json:"system_name"`
}

// StaticInfo is controller information fixed while it runs
type StaticInfo struct {
	RAPIDTasks []RAPIDTask `json:"rapid_tasks"`
	System     SystemInfo  `json:"system"`
}

// RuntimeInfo is the current controller state
type RuntimeInfo struct {
	AutoMode     TriBool `json:"auto_mode"`
	MotorOn      TriBool `json:"motor_on"`
	RAPIDRunning TriBool `json:"rapid_running"`
	Connected    bool    `json:"connected"`
}

// FileResource names a file in the controller file service
type FileResource struct {
	// Directory defaults to DefaultDirectory
	Directory string
	Filename  string
}

func (f FileResource) path() string {
	dir := f.Directory
	if dir == "" {
		dir = DefaultDirectory
	}
	return PathFileService + dir + "/" + f.Filename
}

func parse(res *result.Result) (*xmlquery.Node, error) {
	return xmlutil.Parse(res.HTTP.Response.Body)
}

// value returns the text of the first element of class in the document at uri
func (c *Client) value(ctx context.Context, uri, class string) (string, error) {
	doc, err := c.document(ctx, uri)
	if err != nil {
		return "", err
	}
	v, ok := xmlutil.ClassText(doc, class)
	if !ok {
		return "", errors.Errorf("GET %s: no element of class %q", uri, class)
	}
	return v, nil
}

// compare reports whether the element of class in the document at uri
// has the text want. Any failure gives Unknown.
func (c *Client) compare(ctx context.Context, uri, class, want string) TriBool {
	v, err := c.value(ctx, uri, class)
	if err != nil {
		return Unknown
	}
	return NewTriBool(v == want)
}

func form(kv ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Add(kv[i], kv[i+1])
	}
	return v.Encode()
}

// GetIOSignal returns the logical value of an IO signal
func (c *Client) GetIOSignal(ctx context.Context, name string) (string, error) {
	return c.value(ctx, PathIOSignals+name, "lvalue")
}

// SetIOSignal sets the logical value of an IO signal
func (c *Client) SetIOSignal(ctx context.Context, name, value string) error {
	return c.post(ctx, PathIOSignals+name+actionSet, form("lvalue", value))
}

// GetRAPIDSymbolData returns the value of a RAPID data symbol in RAPID syntax
func (c *Client) GetRAPIDSymbolData(ctx context.Context, task string, symbol RAPIDSymbol) (string, error) {
	return c.value(ctx, symbol.path(task), "value")
}

// SetRAPIDSymbolData sets the value of a RAPID data symbol, given in RAPID syntax
func (c *Client) SetRAPIDSymbolData(ctx context.Context, task string, symbol RAPIDSymbol, value string) error {
	return c.post(ctx, symbol.path(task)+actionSet, form("value", value))
}

// GetRAPIDTasks lists the RAPID tasks defined in the controller
func (c *Client) GetRAPIDTasks(ctx context.Context) ([]RAPIDTask, error) {
	doc, err := c.document(ctx, PathRAPIDTasks)
	if err != nil {
		return nil, err
	}
	items, err := xmlutil.FindClass(doc, "rap-task-li")
	if err != nil {
		return nil, err
	}
	tasks := make([]RAPIDTask, 0, len(items))
	for _, li := range items {
		name, _ := xmlutil.ClassText(li, "name")
		motion, _ := xmlutil.ClassText(li, "motiontask")
		tasks = append(tasks, RAPIDTask{Name: name, MotionTask: strings.EqualFold(motion, "true")})
	}
	return tasks, nil
}

// GetSystemInfo returns the RobotWare version and system name
func (c *Client) GetSystemInfo(ctx context.Context) (SystemInfo, error) {
	var info SystemInfo
	doc, err := c.document(ctx, PathSystem)
	if err != nil {
		return info, err
	}
	if v, ok := xmlutil.ClassText(doc, "rwversionname"); ok {
		info.RobotWareVersion = v
	} else {
		info.RobotWareVersion, _ = xmlutil.ClassText(doc, "rwversion")
	}
	info.SystemName, _ = xmlutil.ClassText(doc, "name")
	return info, nil
}

// IsAutoMode reports whether the controller is in automatic mode
func (c *Client) IsAutoMode(ctx context.Context) TriBool {
	return c.compare(ctx, PathPanelOpMode, "opmode", OpModeAuto)
}

// IsMotorOn reports whether the motors are on
func (c *Client) IsMotorOn(ctx context.Context) TriBool {
	return c.compare(ctx, PathPanelCtrlState, "ctrlstate", CtrlStateMotorOn)
}

// IsRAPIDRunning reports whether RAPID execution is running
func (c *Client) IsRAPIDRunning(ctx context.Context) TriBool {
	return c.compare(ctx, PathRAPIDExecution, "ctrlexecstate", CtrlExecRunning)
}

func (c *Client) StartRAPIDExecution(ctx context.Context) error {
	return c.post(ctx, PathRAPIDExecution+actionStart, startExecutionBody)
}

func (c *Client) StopRAPIDExecution(ctx context.Context) error {
	return c.post(ctx, PathRAPIDExecution+actionStop, form("stopmode", "stop"))
}

// ResetRAPIDProgramPointer moves the program pointer of every task to main
func (c *Client) ResetRAPIDProgramPointer(ctx context.Context) error {
	return c.post(ctx, PathRAPIDExecution+actionResetPP, "")
}

func (c *Client) SetMotorsOn(ctx context.Context) error {
	return c.post(ctx, PathPanelCtrlState+actionSetCtrlState, form("ctrl-state", CtrlStateMotorOn))
}

func (c *Client) SetMotorsOff(ctx context.Context) error {
	return c.post(ctx, PathPanelCtrlState+actionSetCtrlState, form("ctrl-state", CtrlStateMotorOff))
}

// GetFile returns the content of a controller file
func (c *Client) GetFile(ctx context.Context, f FileResource) (string, error) {
	res, err := c.get(ctx, f.path())
	if err != nil {
		return "", err
	}
	return res.HTTP.Response.Body, nil
}

// UploadFile writes content to a controller file, replacing it if present
func (c *Client) UploadFile(ctx context.Context, f FileResource, content string) error {
	_, err := c.execute(ctx, http.MethodPut, f.path(), content)
	return err
}

func (c *Client) DeleteFile(ctx context.Context, f FileResource) error {
	_, err := c.execute(ctx, http.MethodDelete, f.path(), "")
	return err
}

func (c *Client) registerUser(ctx context.Context, locale, username, application, location string) error {
	if username == "" {
		username = DefaultUsername
	}
	if application == "" {
		application = DefaultApplication
	}
	if location == "" {
		location = DefaultLocation
	}
	return c.post(ctx, PathUsers, form(
		"username", username,
		"application", application,
		"location", location,
		"ulocale", locale,
	))
}

// RegisterLocalUser registers a user as local, required for some
// operations such as starting RAPID execution. Empty arguments take
// their defaults.
func (c *Client) RegisterLocalUser(ctx context.Context, username, application, location string) error {
	return c.registerUser(ctx, "local", username, application, location)
}

// RegisterRemoteUser registers a user as remote
func (c *Client) RegisterRemoteUser(ctx context.Context, username, application, location string) error {
	return c.registerUser(ctx, "remote", username, application, location)
}

// Logout ends the RWS session on the controller
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.get(ctx, PathLogout)
	return err
}

// CollectRuntimeInfo reads the current controller state. Connected is
// true if any of the reads succeeded.
func (c *Client) CollectRuntimeInfo(ctx context.Context) RuntimeInfo {
	info := RuntimeInfo{
		AutoMode:     c.IsAutoMode(ctx),
		MotorOn:      c.IsMotorOn(ctx),
		RAPIDRunning: c.IsRAPIDRunning(ctx),
	}
	info.Connected = info.AutoMode != Unknown || info.MotorOn != Unknown || info.RAPIDRunning != Unknown
	return info
}

// CollectStaticInfo reads the RAPID tasks and system information
func (c *Client) CollectStaticInfo(ctx context.Context) (StaticInfo, error) {
	var info StaticInfo
	tasks, err := c.GetRAPIDTasks(ctx)
	if err != nil {
		return info, err
	}
	info.RAPIDTasks = tasks
	if info.System, err = c.GetSystemInfo(ctx); err != nil {
		return info, err
	}
	return info, nil
}
