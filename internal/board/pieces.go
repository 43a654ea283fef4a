package board

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece outlines on a 45x45 view box. {{fill}} and {{stroke}} are replaced per color.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5.5"/>
<path d="M18 21 H27 L30 34 H15 Z"/>`,
	nchess.Knight: `<path d="M14 34 C14 28 17 24 20 20 L15 24 L11 23 C10 19 13 13 18 10 L20 5 L23 9 C30 12 32 22 31 34 Z"/>
<circle cx="18" cy="14" r="1.2" fill="{{stroke}}"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8" r="2.5"/>
<path d="M22.5 11 C28 15 30 20 28 26 L27 31 H18 L17 26 C15 20 17 15 22.5 11 Z"/>
<path d="M20 20 H25 M22.5 17.5 V22.5" fill="none"/>`,
	nchess.Rook: `<path d="M12 10 H16 V13 H20 V10 H25 V13 H29 V10 H33 V17 H30 V31 H15 V17 H12 Z"/>`,
	nchess.Queen: `<circle cx="9" cy="12" r="2.2"/><circle cx="16" cy="9" r="2.2"/><circle cx="22.5" cy="8" r="2.2"/>
<circle cx="29" cy="9" r="2.2"/><circle cx="36" cy="12" r="2.2"/>
<path d="M9 14 L13 31 H32 L36 14 L29 24 L29 11 L25 23 L22.5 10 L20 23 L16 11 L16 24 Z"/>`,
	nchess.King: `<path d="M21 4 H24 V8 H28 V11 H24 V15 H21 V11 H17 V8 H21 Z"/>
<path d="M13 31 C9 24 12 16 22.5 18 C33 16 36 24 32 31 Z"/>`,
}

const pieceBase = `<path d="M11 34 H34 V39 H11 Z"/>`

const pieceSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">
<g fill="{{fill}}" stroke="{{stroke}}" stroke-width="1.5" stroke-linejoin="round">
%s
%s
</g>
</svg>`

type pieceKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceKey{piece: piece, size: size}
	pieceCacheMu.RLock()
	img, ok := pieceCache[key]
	pieceCacheMu.RUnlock()
	if ok {
		return img, nil
	}

	src, err := pieceSource(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	rgba := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = rgba
	pieceCacheMu.Unlock()
	return rgba, nil
}

func pieceSource(piece nchess.Piece) (string, error) {
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return "", fmt.Errorf("no shape for piece %v", piece)
	}
	fill, stroke := "#f8f8f8", "#1a1a1a"
	if piece.Color() == nchess.Black {
		fill, stroke = "#262626", "#e8e8e8"
	}
	src := fmt.Sprintf(pieceSVG, shape, pieceBase)
	return strings.NewReplacer("{{fill}}", fill, "{{stroke}}", stroke).Replace(src), nil
}
