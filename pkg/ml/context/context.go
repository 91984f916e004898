// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package context defines the Context: it organizes the hyperparameters and the nodes of a model
// in scopes, and owns the random number generator used to initialize parameters.
package context

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnfunctor/internal/scoped"
	"github.com/gomlx/nnfunctor/pkg/core/graph"
	"github.com/gomlx/nnfunctor/pkg/ml/context/initializers"
	"golang.org/x/exp/rand"
)

// Context organizes information shared in a model: the nodes (and hence their parameters) and the
// hyperparameters. A model spawns one graph per training step (and per prediction), and all of them
// share the same nodes, which are kept here.
//
// Both nodes and hyperparameters are organized in "scopes". The Context object is a thin wrapper that
// contains the current scope (similar to a current directory) and a link to the actual data. One can change
// scopes by using Context.In("new_scope"): it returns a new Context with the new scope set, but still pointing
// (sharing) all the data with the previous Context. E.g:
//
//	func main() {
//		ctx := context.New()
//		ctx.SetParam(context.ParamLearningRate, 0.1)
//		...
//	}
//
//	func ModelGraph(ctx *context.Context, g *graph.Graph, inputs []*graph.Var) *graph.Var {
//		hidden := layers.Sigmoid(ctx.In("hidden"), g, layers.Linear(ctx.In("hidden"), g, inputs[0], 2))
//		{
//			ctx := ctx.In("output")  // Same data, different scope.
//			ctx.SetParam(context.ParamLearningRate, 0.5)  // Only the output layer learns faster.
//			return layers.Linear(ctx, g, hidden, 1)
//		}
//	}
type Context struct {
	// scope for currently created nodes and parameters.
	scope string

	// initializer is used to initialize parameter values for a given shape.
	initializer initializers.Initializer

	// data is shared among the various Context references.
	data *contextData
}

// contextData stores all context information and is shared among various Context, which
// serve only as scoped references.
type contextData struct {
	// params holds a model's hyperparameters. Context is agnostic about their semantics: these values
	// are interpreted by the various model components independently.
	params *scoped.Params

	// nodes by their absolute scoped name.
	nodes      map[string]*graph.Node
	errorNodes map[string]*graph.ErrorNode

	rng *rand.Rand
}

const (
	// ScopeSeparator is used between levels of scope. Scope names cannot use this character.
	ScopeSeparator = "/"

	// RootScope is the scope at the very root.
	RootScope = ScopeSeparator
)

// Well known hyperparameters.
const (
	// ParamLearningRate is the learning rate (eps) used by the strategies created in a scope.
	// Default is graph.DefaultLearningRate.
	ParamLearningRate = "learning_rate"

	// ParamAggregation is how requests of multiple consumers are combined: "sum" (default) or "mean".
	ParamAggregation = "aggregation"

	// ParamInitStddev is the standard deviation of the default random normal initializer. Default is 1.0.
	ParamInitStddev = "init_stddev"

	// ParamSeed is the seed of the random number generator. Set it with Context.WithSeed.
	ParamSeed = "seed"
)

// New returns an empty context, associated with freshly created data.
//
// The random number generator is seeded with 0: use Context.WithSeed to change it.
// The default initializer is a random normal with standard deviation given by ParamInitStddev.
func New() *Context {
	return &Context{
		scope: RootScope,
		data: &contextData{
			params:     scoped.New(ScopeSeparator),
			nodes:      make(map[string]*graph.Node),
			errorNodes: make(map[string]*graph.ErrorNode),
			rng:        rand.New(rand.NewSource(0)),
		},
	}
}

// copy creates a copy of the Context, but sharing the same "data" component.
func (ctx *Context) copy() *Context {
	ctx2 := &Context{}
	*ctx2 = *ctx
	return ctx2
}

// JoinScope and name into a single string.
// If scope is empty, name is returned.
// See also SplitScope.
func JoinScope(scope, name string) string {
	if scope == "" {
		return name
	}
	if strings.HasSuffix(scope, ScopeSeparator) {
		return scope + name
	}
	return scope + ScopeSeparator + name
}

// SplitScope splits the scope from the name for a combined string, typically created by JoinScope.
// If there is no scope configured, scope is set to "".
func SplitScope(scopeAndName string) (scope, name string) {
	if !strings.HasPrefix(scopeAndName, ScopeSeparator) {
		return "", scopeAndName
	}
	idx := strings.LastIndex(scopeAndName, ScopeSeparator)
	name = scopeAndName[idx+1:]
	if idx == 0 {
		scope = RootScope
	} else {
		scope = scopeAndName[:idx]
	}
	return
}

// EscapeScopeName replaces ScopeSeparator in the string and replaces them by "_".
func EscapeScopeName(scopeName string) string {
	return strings.ReplaceAll(scopeName, ScopeSeparator, "_")
}

// Scope returns the full scope path.
//
// Notice that Scope is part of the "reference" component of a Context.
func (ctx *Context) Scope() string {
	return ctx.scope
}

// In returns a new reference to the Context with the extra given scope. No ScopeSeparator ("/") is
// allowed in scope.
//
// Notice that Scope is part of the "reference" component of a Context.
func (ctx *Context) In(scope string) *Context {
	if scope == "" {
		exceptions.Panicf("cannot use empty scope for Context.In()")
	}
	if strings.Contains(scope, ScopeSeparator) {
		exceptions.Panicf("cannot use separator %q in scope element %q", ScopeSeparator, scope)
	}
	return ctx.InAbsPath(JoinScope(ctx.scope, scope))
}

// Inf returns a new reference to the Context with the extra given scope, formatted with fmt.Sprintf.
//
// It is a shortcut to Context.In combined with fmt.Sprintf.
func (ctx *Context) Inf(format string, args ...any) *Context {
	return ctx.In(fmt.Sprintf(format, args...))
}

// InAbsPath returns a new reference to the Context with the given absolute scope path. It should start and
// have each element separated by ScopeSeparator. Use RootScope for the root scope.
func (ctx *Context) InAbsPath(scopePath string) *Context {
	if !strings.HasPrefix(scopePath, ScopeSeparator) {
		exceptions.Panicf("absolute scope path must start with separator %q, instead got %q", ScopeSeparator, scopePath)
	}
	if len(scopePath) > 1 && strings.HasSuffix(scopePath, ScopeSeparator) {
		exceptions.Panicf("absolute scope path %q must not end with separator %q", scopePath, ScopeSeparator)
	}
	ctx2 := ctx.copy()
	ctx2.scope = scopePath
	return ctx2
}

// GetParam returns the value for the given param key, searching successively from
// the current scope back to the root scope ("/"), in case the key is not found.
//
// E.g: if current scope is "/a/b", it will search for the key in "/a/b" scope, then
// in "/a" and finally in "/", and return the first result found.
//
// See also GetParamOr to get a parameter with a default, if one doesn't exist.
func (ctx *Context) GetParam(key string) (value any, found bool) {
	return ctx.data.params.Get(ctx.scope, key)
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// MustGetParam is like GetParam, but panics if the parameter is not found, or if it is not of type T.
//
// It tries to cast the value to the given type. If it fails, it tries to convert the
// value to the given type (so an `int` will be converted to a `float64` transparently).
// Strings are parsed into types implementing encoding.TextUnmarshaler.
// If that also fails, an explaining exception is thrown.
func MustGetParam[T any](ctx *Context, key string) T {
	var t T
	valueAny, found := ctx.GetParam(key)
	if !found {
		exceptions.Panicf("parameter %q (of type %T) not found in scope %q (and its parents)", key, t, ctx.Scope())
	}
	if value, ok := valueAny.(T); ok {
		return value
	}

	v := reflect.ValueOf(valueAny)
	typeOfT := reflect.TypeOf(t)
	ptrT := reflect.New(typeOfT)
	if ptrT.Type().Implements(textUnmarshalerType) && v.Kind() == reflect.String {
		if err := ptrT.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
			exceptions.Panicf("MustGetParam[%s](ctx, %q): can't parse %q: %v", typeOfT, key, v.String(), err)
		}
		return ptrT.Elem().Interface().(T)
	}
	if !v.IsValid() || !v.CanConvert(typeOfT) {
		exceptions.Panicf("MustGetParam[%s](ctx, %q): ctx(scope=%q)[%q]=(%T) %#v, and cannot be converted to %s",
			typeOfT, key, ctx.Scope(), key, valueAny, valueAny, typeOfT)
	}
	return v.Convert(typeOfT).Interface().(T)
}

// GetParamOr either returns the value for the given param key in the context `ctx`,
// searching successively from the current scope back to the root scope ("/"), or if the
// key is not found or the key is set to nil, it returns the given default value.
//
// Conversions follow MustGetParam.
func GetParamOr[T any](ctx *Context, key string, defaultValue T) T {
	valueAny, found := ctx.GetParam(key)
	if !found || valueAny == nil {
		return defaultValue
	}
	return MustGetParam[T](ctx, key)
}

// SetParam sets the given param in the current scope. It will be visible (by GetParam)
// within this scope and descendant scopes (but not by other scopes).
func (ctx *Context) SetParam(key string, value any) {
	ctx.data.params.Set(ctx.scope, key, value)
}

// SetParams sets a collection of parameters in the current scope.
//
// This is a shortcut to multiple calls to Context.SetParam.
func (ctx *Context) SetParams(keyValues map[string]any) {
	for key, value := range keyValues {
		ctx.data.params.Set(ctx.scope, key, value)
	}
}

// EnumerateParams enumerates all parameters for all scopes calls fn with their values.
func (ctx *Context) EnumerateParams(fn func(scope, key string, value any)) {
	ctx.data.params.Enumerate(fn)
}

// LearningRate configured for the current scope.
func (ctx *Context) LearningRate() float64 {
	return GetParamOr(ctx, ParamLearningRate, graph.DefaultLearningRate)
}

// Learn returns the learning configuration for strategies created in the current scope.
func (ctx *Context) Learn() graph.Learn {
	return graph.Learn{Eps: ctx.LearningRate()}
}

// Aggregation configured for the current scope. It panics if the parameter holds an invalid value.
func (ctx *Context) Aggregation() graph.Aggregation {
	value, found := ctx.GetParam(ParamAggregation)
	if !found {
		return graph.AggregateSum
	}
	if aggregation, ok := value.(graph.Aggregation); ok {
		return aggregation
	}
	aggregation, err := graph.ParseAggregation(fmt.Sprint(value))
	if err != nil {
		panic(err)
	}
	return aggregation
}

// NewGraph creates a graph configured with the context's aggregation policy.
func (ctx *Context) NewGraph(name string) *graph.Graph {
	return graph.NewGraph(name).WithAggregation(ctx.Aggregation())
}
