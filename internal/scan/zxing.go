package scan

import (
	"errors"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Decoder распознаёт код на одном кадре. Кадр без кода — ErrNotFound.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// ZXingDecoder — Decoder поверх gozxing.
type ZXingDecoder struct {
	TryHarder bool
}

func (d ZXingDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}
	var hints map[gozxing.DecodeHintType]interface{}
	if d.TryHarder {
		hints = map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true}
	}
	// QRCodeReader не потокобезопасен
	res, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		var re gozxing.ReaderException
		if errors.As(err, &re) {
			return "", ErrNotFound
		}
		return "", err
	}
	return res.GetText(), nil
}
