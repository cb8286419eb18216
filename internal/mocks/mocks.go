// internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/wardrunner/api/schemas"
	"github.com/xkilldash9x/wardrunner/internal/browser/driver"
)

// -- Driver Mock --

// MockDriver mocks driver.Driver.
type MockDriver struct {
	mock.Mock
}

var _ driver.Driver = (*MockDriver)(nil)

func (m *MockDriver) Find(ctx context.Context, loc schemas.Locator) (driver.Element, error) {
	args := m.Called(ctx, loc)
	el, _ := args.Get(0).(driver.Element)
	return el, args.Error(1)
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Evaluate(ctx context.Context, script string, res interface{}) error {
	return m.Called(ctx, script, res).Error(0)
}

func (m *MockDriver) ReadyState(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	buf, _ := args.Get(0).([]byte)
	return buf, args.Error(1)
}

func (m *MockDriver) OpenTab(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) SwitchTab(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockDriver) CloseTab(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockDriver) Tabs() []string {
	args := m.Called()
	tabs, _ := args.Get(0).([]string)
	return tabs
}

func (m *MockDriver) Quit(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Element Mock --

// MockElement mocks driver.Element.
type MockElement struct {
	mock.Mock
	Loc schemas.Locator
}

var _ driver.Element = (*MockElement)(nil)

// NewMockElement returns an element mock reporting loc as its locator.
func NewMockElement(loc schemas.Locator) *MockElement {
	return &MockElement{Loc: loc}
}

func (m *MockElement) Locator() schemas.Locator { return m.Loc }

func (m *MockElement) Click(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) ScriptClick(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) SendKeys(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) ScriptSetValue(ctx context.Context, value string) error {
	return m.Called(ctx, value).Error(0)
}

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Attribute(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Visible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Enabled(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) SelectByText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) ScriptSelectByText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

// -- Credential Source Mock --

// MockCredentialSource mocks login.CredentialSource.
type MockCredentialSource struct {
	mock.Mock
}

func (m *MockCredentialSource) Lookup(ctx context.Context, env string, role schemas.RoleID) (schemas.Credential, error) {
	args := m.Called(ctx, env, role)
	cred, _ := args.Get(0).(schemas.Credential)
	return cred, args.Error(1)
}

// -- Reporter Mock --

// MockReporter mocks reporting.Reporter.
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Attach(ctx context.Context, drv driver.Driver, role schemas.RoleID, cause error) (string, error) {
	args := m.Called(ctx, drv, role, cause)
	return args.String(0), args.Error(1)
}
