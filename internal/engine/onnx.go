package engine

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/chewxy/math32"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"rotoforge/pkg/types"
)

// Model input geometry and ImageNet normalization constants.
const (
	inputSize     = 1024
	maskThreshold = 0.0

	meanR, meanG, meanB = 0.485, 0.456, 0.406
	stdR, stdG, stdB    = 0.229, 0.224, 0.225
)

// Prompt-point labels understood by the decoder. Boxes travel as two extra
// points carrying the corner labels; a single padding point with labelPad is
// required when no point prompts exist.
const (
	labelBackground  = 0.0
	labelForeground  = 1.0
	labelBoxTopLeft  = 2.0
	labelBoxBotRight = 3.0
	labelPad         = -1.0
)

var (
	ortInitErr error
	ortOnce    sync.Once
)

// initRuntime loads the onnxruntime shared library once per process.
func initRuntime(libPath string) error {
	if libPath == "" {
		return ErrModelLoad("onnxruntime library path is empty")
	}
	ortOnce.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return ErrModelLoad(fmt.Sprintf("initialize onnxruntime: %v", ortInitErr))
	}
	return nil
}

// ONNXConfig configures the native SAM-HQ backend.
type ONNXConfig struct {
	LibPath    string
	UseCUDA    bool
	NumThreads int
}

// onnxPredictor runs a SAM-HQ weight pair through two ONNX sessions: the
// image encoder and the prompt-encoder/mask-decoder.
type onnxPredictor struct {
	encoder *ort.DynamicAdvancedSession
	decoder *ort.DynamicAdvancedSession
	options *ort.SessionOptions
}

// NewONNXPredictor loads the weight pair for one tier. Missing or unreadable
// weights surface as a model-load error.
func NewONNXPredictor(w types.ModelWeights, cfg ONNXConfig) (Predictor, error) {
	if err := initRuntime(cfg.LibPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, ErrModelLoad(fmt.Sprintf("session options: %v", err))
	}
	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			options.Destroy()
			return nil, ErrModelLoad(fmt.Sprintf("set threads: %v", err))
		}
	}
	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, ErrModelLoad(fmt.Sprintf("cuda provider options: %v", err))
		}
		err = options.AppendExecutionProviderCUDA(cudaOptions)
		cudaOptions.Destroy()
		if err != nil {
			options.Destroy()
			return nil, ErrModelLoad(fmt.Sprintf("append cuda provider: %v", err))
		}
	}

	encoder, err := ort.NewDynamicAdvancedSession(w.EncoderPath,
		[]string{"image"},
		[]string{"image_embeddings", "interm_embeddings"},
		options)
	if err != nil {
		options.Destroy()
		return nil, ErrModelLoad(fmt.Sprintf("encoder session (%s): %v", w.EncoderPath, err))
	}
	decoder, err := ort.NewDynamicAdvancedSession(w.DecoderPath,
		[]string{
			"image_embeddings", "interm_embeddings",
			"point_coords", "point_labels",
			"mask_input", "has_mask_input", "orig_im_size",
		},
		[]string{"masks", "iou_predictions", "low_res_masks"},
		options)
	if err != nil {
		encoder.Destroy()
		options.Destroy()
		return nil, ErrModelLoad(fmt.Sprintf("decoder session (%s): %v", w.DecoderPath, err))
	}

	return &onnxPredictor{encoder: encoder, decoder: decoder, options: options}, nil
}

func (p *onnxPredictor) Close() error {
	var firstErr error
	if p.decoder != nil {
		if err := p.decoder.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.decoder = nil
	}
	if p.encoder != nil {
		if err := p.encoder.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.encoder = nil
	}
	if p.options != nil {
		p.options.Destroy()
		p.options = nil
	}
	return firstErr
}

// Predict runs encoder and decoder for one frame. Every tensor created here
// is destroyed before returning, so a long tracking session does not
// accumulate device memory.
func (p *onnxPredictor) Predict(ctx context.Context, img image.Image, prompts types.PromptSet) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	scale := float32(inputSize) / math32.Max(float32(origW), float32(origH))

	// Encoder pass.
	tensorData := normalizeAndPad(img, scale)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, inputSize, inputSize), tensorData)
	if err != nil {
		return Prediction{}, ErrInference(fmt.Sprintf("image tensor: %v", err))
	}
	defer inputTensor.Destroy()

	embeddings := make([]ort.Value, 2)
	if err := p.encoder.Run([]ort.Value{inputTensor}, embeddings); err != nil {
		return Prediction{}, ErrInference(fmt.Sprintf("encoder: %v", err))
	}
	defer destroyAll(embeddings)

	// Decoder prompt tensors.
	coords, labels := encodePrompts(prompts, scale)
	n := int64(len(labels))
	tCoords, err := ort.NewTensor(ort.NewShape(1, n, 2), coords)
	if err != nil {
		return Prediction{}, ErrInference(fmt.Sprintf("point coords tensor: %v", err))
	}
	defer tCoords.Destroy()
	tLabels, err := ort.NewTensor(ort.NewShape(1, n), labels)
	if err != nil {
		return Prediction{}, ErrInference(fmt.Sprintf("point labels tensor: %v", err))
	}
	defer tLabels.Destroy()

	prior := prompts.Prior
	hasMask := float32(1)
	if prior == nil {
		prior = make([]float32, LogitsSize*LogitsSize)
		hasMask = 0
	}
	tMask, err := ort.NewTensor(ort.NewShape(1, 1, LogitsSize, LogitsSize), prior)
	if err != nil {
		return Prediction{}, ErrInference(fmt.Sprintf("mask input tensor: %v", err))
	}
	defer tMask.Destroy()
	tHasMask, err := ort.NewTensor(ort.NewShape(1), []float32{hasMask})
	if err != nil {
		return Prediction{}, ErrInference(fmt.Sprintf("has-mask tensor: %v", err))
	}
	defer tHasMask.Destroy()
	tOrigSize, err := ort.NewTensor(ort.NewShape(2), []float32{float32(origH), float32(origW)})
	if err != nil {
		return Prediction{}, ErrInference(fmt.Sprintf("orig size tensor: %v", err))
	}
	defer tOrigSize.Destroy()

	inputs := []ort.Value{
		embeddings[0], embeddings[1],
		tCoords, tLabels,
		tMask, tHasMask, tOrigSize,
	}
	outputs := make([]ort.Value, 3)
	if err := p.decoder.Run(inputs, outputs); err != nil {
		return Prediction{}, ErrInference(fmt.Sprintf("decoder: %v", err))
	}
	defer destroyAll(outputs)

	return collectCandidates(outputs, origW, origH)
}

// collectCandidates converts raw decoder outputs into a Prediction.
func collectCandidates(outputs []ort.Value, origW, origH int) (Prediction, error) {
	maskT, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Prediction{}, ErrInference("masks output is not a float32 tensor")
	}
	scoreT, ok := outputs[1].(*ort.Tensor[float32])
	if !ok {
		return Prediction{}, ErrInference("iou_predictions output is not a float32 tensor")
	}
	logitsT, ok := outputs[2].(*ort.Tensor[float32])
	if !ok {
		return Prediction{}, ErrInference("low_res_masks output is not a float32 tensor")
	}

	maskShape := maskT.GetShape()
	if len(maskShape) != 4 || int(maskShape[2]) != origH || int(maskShape[3]) != origW {
		return Prediction{}, ErrInference(fmt.Sprintf("unexpected masks shape %v for %dx%d frame", maskShape, origW, origH))
	}
	count := int(maskShape[1])
	scores := scoreT.GetData()
	rawMasks := maskT.GetData()
	rawLogits := logitsT.GetData()
	if len(scores) < count || len(rawLogits) < count*LogitsSize*LogitsSize {
		return Prediction{}, ErrInference("decoder outputs shorter than candidate count")
	}

	pred := Prediction{
		Masks:  make([]*image.Gray, count),
		Scores: make([]float32, count),
		Logits: make([][]float32, count),
	}
	frame := origW * origH
	lres := LogitsSize * LogitsSize
	for i := 0; i < count; i++ {
		gray := image.NewGray(image.Rect(0, 0, origW, origH))
		src := rawMasks[i*frame : (i+1)*frame]
		for j, v := range src {
			if v > maskThreshold {
				gray.Pix[j] = 255
			}
		}
		pred.Masks[i] = gray
		pred.Scores[i] = scores[i]
		pred.Logits[i] = append([]float32(nil), rawLogits[i*lres:(i+1)*lres]...)
	}
	return pred, nil
}

// encodePrompts flattens points, labels and the optional box into the
// decoder's coordinate/label arrays, scaled into model input space.
func encodePrompts(prompts types.PromptSet, scale float32) (coords []float32, labels []float32) {
	for i, pt := range prompts.Points {
		coords = append(coords, pt.X*scale, pt.Y*scale)
		lbl := float32(labelBackground)
		if i < len(prompts.Labels) && prompts.Labels[i] == 1 {
			lbl = labelForeground
		}
		labels = append(labels, lbl)
	}
	if b := prompts.Box; b != nil {
		coords = append(coords,
			b.X0*scale, b.Y0*scale,
			b.X1*scale, b.Y1*scale)
		labels = append(labels, labelBoxTopLeft, labelBoxBotRight)
	} else {
		// The exporter requires a padding point when no box is given.
		coords = append(coords, 0, 0)
		labels = append(labels, labelPad)
	}
	return coords, labels
}

// normalizeAndPad resizes the frame so its long side is inputSize, normalizes
// with ImageNet statistics and zero-pads the short side, returning CHW data.
func normalizeAndPad(src image.Image, scale float32) []float32 {
	bounds := src.Bounds()
	newW := int(float32(bounds.Dx()) * scale)
	newH := int(float32(bounds.Dy()) * scale)

	resized := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(resized, resized.Bounds(), src, bounds, draw.Src, nil)

	data := make([]float32, 3*inputSize*inputSize)
	plane := inputSize * inputSize
	for y := 0; y < newH; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < newW; x++ {
			r := float32(row[x*4]) / 255.0
			g := float32(row[x*4+1]) / 255.0
			b := float32(row[x*4+2]) / 255.0
			idx := y*inputSize + x
			data[idx] = (r - meanR) / stdR
			data[plane+idx] = (g - meanG) / stdG
			data[2*plane+idx] = (b - meanB) / stdB
		}
	}
	return data
}

func destroyAll(vals []ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Destroy()
		}
	}
}
