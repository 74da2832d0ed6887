// Suite of components that can be composed to make sinks. The centrepiece is the
// RouterSink, which splits a stream of tagged items over two other sinks; the rest are
// endpoints and wrappers that give those sinks real behaviour (buffering, backpressure,
// instrumentation) without each backend having to implement it.
package generic
