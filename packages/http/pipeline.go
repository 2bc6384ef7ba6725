package http

import (
	"context"

	"github.com/abdul-hamid-achik/hitwire/packages/interceptor"
)

// RequestInterceptor transforms an outgoing request
type RequestInterceptor = interceptor.Func[*Request]

// ResponseInterceptor transforms an incoming response
type ResponseInterceptor = interceptor.Func[*Response]

// Pipeline holds the request and response interceptor chains
type Pipeline struct {
	requests  *interceptor.Chain[*Request]
	responses *interceptor.Chain[*Response]
}

// NewPipeline creates an empty pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{
		requests:  interceptor.NewChain[*Request]("request"),
		responses: interceptor.NewChain[*Response]("response"),
	}
}

// AddRequestInterceptor appends fn to the request chain
func (p *Pipeline) AddRequestInterceptor(name string, fn RequestInterceptor) {
	p.requests.Use(name, nilGuard(fn))
}

// AddResponseInterceptor appends fn to the response chain
func (p *Pipeline) AddResponseInterceptor(name string, fn ResponseInterceptor) {
	p.responses.Use(name, nilGuard(fn))
}

// ProcessRequest runs req through the request chain
func (p *Pipeline) ProcessRequest(ctx context.Context, req *Request) (*Request, error) {
	return p.requests.Process(ctx, req)
}

// ProcessResponse runs resp through the response chain
func (p *Pipeline) ProcessResponse(ctx context.Context, resp *Response) (*Response, error) {
	return p.responses.Process(ctx, resp)
}

// RequestInterceptors returns the registered request interceptor names
func (p *Pipeline) RequestInterceptors() []string {
	return p.requests.Names()
}

// ResponseInterceptors returns the registered response interceptor names
func (p *Pipeline) ResponseInterceptors() []string {
	return p.responses.Names()
}

func nilGuard[T any](fn interceptor.Func[*T]) interceptor.Func[*T] {
	return func(ctx context.Context, v *T) (*T, error) {
		out, err := fn(ctx, v)
		if err == nil && out == nil {
			return nil, interceptor.ErrNilResult
		}
		return out, err
	}
}

// HeaderInterceptor sets a header on every request
func HeaderInterceptor(key, value string) RequestInterceptor {
	return func(ctx context.Context, req *Request) (*Request, error) {
		return req.SetHeader(key, value), nil
	}
}
