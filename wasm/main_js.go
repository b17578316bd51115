//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/depthify/depthify/api"
	"github.com/depthify/depthify/depth"
	"github.com/depthify/depthify/render"
)

func bytesArg(v js.Value) []byte {
	buf := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(buf, v)
	return buf
}

func toUint8Array(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

// meshParams reads the optional (scale, invert) arguments following the image bytes.
func meshParams(args []js.Value) api.MeshParams {
	p := api.MeshParams{DepthScale: 10}
	if len(args) > 1 && args[1].Type() == js.TypeNumber {
		p.DepthScale = args[1].Float()
	}
	if len(args) > 2 && args[2].Type() == js.TypeBoolean {
		p.Invert = args[2].Bool()
	}
	return p
}

// depth2glb(imageBytes, scale?, invert?) -> Uint8Array | error string
func depth2glb(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing image bytes")
	}
	out, err := api.ImageToGLB(bytesArg(args[0]), depth.DefaultDecodeOptions(), meshParams(args))
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toUint8Array(out)
}

// depth2png(imageBytes, scale?, invert?, width?, height?) -> Uint8Array | error string
func depth2png(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing image bytes")
	}
	ro := render.DefaultOptions()
	if len(args) > 4 && args[3].Type() == js.TypeNumber && args[4].Type() == js.TypeNumber {
		ro.Width, ro.Height = args[3].Int(), args[4].Int()
	}
	out, err := api.RenderImage(bytesArg(args[0]), depth.DefaultDecodeOptions(), meshParams(args), ro, render.PNG)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toUint8Array(out)
}

func main() {
	js.Global().Set("depth2glb", js.FuncOf(depth2glb))
	js.Global().Set("depth2png", js.FuncOf(depth2png))
	select {}
}
